// Package phone canonicalizes external contact numbers into the key used to
// match conversations.
package phone

import (
	"errors"
	"fmt"
	"strings"
)

const (
	minDigits = 10
	maxDigits = 15
)

var ErrInvalidPhone = errors.New("invalid phone")

// InvalidPhoneError describes why a raw number was rejected.
type InvalidPhoneError struct {
	Raw    string
	Reason string
}

func (e *InvalidPhoneError) Error() string {
	return fmt.Sprintf("invalid phone %q: %s", e.Raw, e.Reason)
}

func (e *InvalidPhoneError) Is(target error) bool {
	return target == ErrInvalidPhone
}

// Normalizer applies one country's numbering plan. Numbers outside that plan
// are kept as already-international digit strings.
type Normalizer struct {
	CountryCode     string
	DomesticLengths []int
}

// Default is the Brazilian plan: DDD + subscriber, 10 or 11 digits.
var Default = Normalizer{
	CountryCode:     "55",
	DomesticLengths: []int{10, 11},
}

func Normalize(raw string) (string, error) {
	return Default.Normalize(raw)
}

func Variants(raw string) ([]string, error) {
	return Default.Variants(raw)
}

func Digits(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (n Normalizer) Normalize(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", &InvalidPhoneError{Raw: raw, Reason: "empty"}
	}

	digits := Digits(raw)
	switch {
	case digits == "":
		return "", &InvalidPhoneError{Raw: raw, Reason: "no digits"}
	case len(digits) < minDigits:
		return "", &InvalidPhoneError{Raw: raw, Reason: "too short"}
	case len(digits) > maxDigits:
		return "", &InvalidPhoneError{Raw: raw, Reason: "too long"}
	}

	if n.isDomesticLength(len(digits)) {
		return n.CountryCode + digits, nil
	}

	if n.CountryCode != "" && n.maxDomesticLength() > 0 && strings.HasPrefix(digits, n.CountryCode) {
		// Prefixo digitado duas vezes: mantém só os últimos dígitos do assinante
		expected := len(n.CountryCode) + n.maxDomesticLength()
		if len(digits) > expected {
			return n.CountryCode + digits[len(digits)-n.maxDomesticLength():], nil
		}
	}

	return digits, nil
}

// Variants lists plausible representations of raw, most likely provider
// form first. It is meant for diagnostics and retry tooling only.
func (n Normalizer) Variants(raw string) ([]string, error) {
	normalized, err := n.Normalize(raw)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var variants []string
	add := func(v string) {
		if v == "" || seen[v] {
			return
		}
		seen[v] = true
		variants = append(variants, v)
	}

	add(normalized)
	if n.CountryCode == "" || !strings.HasPrefix(normalized, n.CountryCode) {
		return variants, nil
	}

	national := strings.TrimPrefix(normalized, n.CountryCode)
	alternate := mobileNinthDigitVariant(national)
	if alternate != "" {
		add(n.CountryCode + alternate)
	}
	add(national)
	if alternate != "" {
		add(alternate)
	}

	return variants, nil
}

// mobileNinthDigitVariant toggles the extra leading 9 of mobile subscriber
// numbers (DDD + 9XXXXXXXX vs DDD + XXXXXXXX).
func mobileNinthDigitVariant(national string) string {
	switch len(national) {
	case 11:
		if national[2] == '9' {
			return national[:2] + national[3:]
		}
	case 10:
		if national[2] >= '6' {
			return national[:2] + "9" + national[2:]
		}
	}
	return ""
}

func (n Normalizer) isDomesticLength(length int) bool {
	for _, l := range n.DomesticLengths {
		if l == length {
			return true
		}
	}
	return false
}

func (n Normalizer) maxDomesticLength() int {
	max := 0
	for _, l := range n.DomesticLengths {
		if l > max {
			max = l
		}
	}
	return max
}
