package utils

import (
	"mime"
	"path/filepath"
	"strings"
)

func GetExtensionFromMime(mimeType string) string {
	switch strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0])) {
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/png":
		return "png"
	case "image/gif":
		return "gif"
	case "image/webp":
		return "webp"
	case "audio/ogg":
		return "ogg"
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/wav":
		return "wav"
	case "audio/webm":
		return "webm"
	case "video/mp4":
		return "mp4"
	case "application/pdf":
		return "pdf"
	default:
		return "bin"
	}
}

// MimeFromFileName guesses the type of an uploaded attachment.
func MimeFromFileName(name string) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); t != "" {
		return t
	}
	return "application/octet-stream"
}

func IsAudioMime(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(mimeType), "audio/")
}
