package utils

import (
	"regexp"
	"strings"
)

var urlPattern = regexp.MustCompile(`^(https?|ftp)://[^\s/$.?#].[^\s]*$`)

// IsURL returns true if the given string appears to be a URL
func IsURL(str string) bool {
	lower := strings.ToLower(str)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return true
	}
	return urlPattern.MatchString(lower)
}

// ClientIP prefers proxy headers and falls back to the remote address.
func ClientIP(forwardedFor, realIP, remoteAddr string) string {
	if forwardedFor != "" {
		return strings.TrimSpace(strings.Split(forwardedFor, ",")[0])
	}
	if realIP != "" {
		return realIP
	}
	if i := strings.LastIndex(remoteAddr, ":"); i > 0 {
		return remoteAddr[:i]
	}
	return remoteAddr
}
