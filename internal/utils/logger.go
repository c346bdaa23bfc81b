package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow/types"

	"whatsapp-router/internal/phone"
)

// Logger is the process logger. Configure replaces it at startup.
var Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.DateTime}).
	With().Timestamp().Logger()

// Configure sets level ("debug", "info", ...) and format ("console" or "json").
func Configure(level, format string) error {
	return ConfigureWriter(os.Stdout, level, format)
}

func ConfigureWriter(out io.Writer, level, format string) error {
	lvl := zerolog.InfoLevel
	if strings.TrimSpace(level) != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(level))
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", level, err)
		}
		lvl = parsed
	}

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "console", "text":
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.DateTime}
	case "json":
	default:
		return fmt.Errorf("invalid log format %q", format)
	}

	Logger = zerolog.New(out).Level(lvl).With().Timestamp().Logger()
	return nil
}

// Component returns a child logger tagged with the component name.
func Component(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}

func caller() string {
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		return "?"
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}

func LogDebug(format string, v ...interface{}) {
	Logger.Debug().Str("caller", caller()).Msgf(format, v...)
}

func LogInfo(format string, v ...interface{}) {
	Logger.Info().Msgf(format, v...)
}

func LogError(format string, v ...interface{}) {
	Logger.Error().Str("caller", caller()).Msgf(format, v...)
}

func LogWarning(format string, v ...interface{}) {
	Logger.Warn().Str("caller", caller()).Msgf(format, v...)
}

func TimeTrack(start time.Time, name string) {
	LogDebug("%s levou %s", name, time.Since(start))
}

// ParseJID builds a user JID from a normalized phone key. The key is used
// as is; numbering plans are applied before it gets here.
func ParseJID(recipient string) (types.JID, error) {
	if strings.Contains(recipient, "@") {
		return types.ParseJID(recipient)
	}
	if recipient == "" || phone.Digits(recipient) != recipient {
		return types.JID{}, fmt.Errorf("recipient %q is not a normalized phone", recipient)
	}
	return types.NewJID(recipient, types.DefaultUserServer), nil
}
