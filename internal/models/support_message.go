package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ContentSentinel marks a stored message body as an encoded typed payload.
// Bodies without it are plain text.
const ContentSentinel = "::payload::"

type ContentKind string

const (
	ContentText  ContentKind = "text"
	ContentFile  ContentKind = "file"
	ContentAudio ContentKind = "audio"
)

type FileContent struct {
	URL      string `json:"url"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
}

type AudioContent struct {
	URL      string   `json:"url"`
	MimeType string   `json:"mime_type"`
	Duration *float64 `json:"duration,omitempty"`
}

// MessageContent is a tagged variant: exactly one of Text, File or Audio is
// meaningful, selected by Kind.
type MessageContent struct {
	Kind  ContentKind   `json:"kind"`
	Text  string        `json:"text,omitempty"`
	File  *FileContent  `json:"file,omitempty"`
	Audio *AudioContent `json:"audio,omitempty"`
}

func TextContent(text string) MessageContent {
	return MessageContent{Kind: ContentText, Text: text}
}

func (c MessageContent) Validate() error {
	switch c.Kind {
	case ContentText:
		if strings.TrimSpace(c.Text) == "" {
			return errors.New("text content is empty")
		}
	case ContentFile:
		if c.File == nil || c.File.URL == "" {
			return errors.New("file content requires url")
		}
	case ContentAudio:
		if c.Audio == nil || c.Audio.URL == "" {
			return errors.New("audio content requires url")
		}
	default:
		return fmt.Errorf("unknown content kind %q", c.Kind)
	}
	return nil
}

// Preview is a short human-readable line for lists and notifications.
func (c MessageContent) Preview() string {
	switch c.Kind {
	case ContentFile:
		if c.File != nil && c.File.Name != "" {
			return "📎 " + c.File.Name
		}
		return "📎 arquivo"
	case ContentAudio:
		return "🎤 áudio"
	}
	return c.Text
}

type storedPayload struct {
	Type     ContentKind `json:"type"`
	Text     string      `json:"text,omitempty"`
	URL      string      `json:"url,omitempty"`
	Name     string      `json:"name,omitempty"`
	Size     int64       `json:"size,omitempty"`
	MimeType string      `json:"mimeType,omitempty"`
	Duration *float64    `json:"duration,omitempty"`
}

// EncodeContent renders content for the textual storage column. Text is
// stored as is unless it starts with the sentinel, in which case it is
// wrapped in a text payload.
func EncodeContent(c MessageContent) (string, error) {
	var p storedPayload
	switch c.Kind {
	case ContentText, "":
		if !strings.HasPrefix(c.Text, ContentSentinel) {
			return c.Text, nil
		}
		p = storedPayload{Type: ContentText, Text: c.Text}
	case ContentFile:
		if c.File == nil {
			return "", errors.New("file content is nil")
		}
		p = storedPayload{Type: ContentFile, URL: c.File.URL, Name: c.File.Name, Size: c.File.Size, MimeType: c.File.MimeType}
	case ContentAudio:
		if c.Audio == nil {
			return "", errors.New("audio content is nil")
		}
		p = storedPayload{Type: ContentAudio, URL: c.Audio.URL, MimeType: c.Audio.MimeType, Duration: c.Audio.Duration}
	default:
		return "", fmt.Errorf("unknown content kind %q", c.Kind)
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("error encoding content: %w", err)
	}
	return ContentSentinel + string(raw), nil
}

// DecodeContent is the inverse of EncodeContent. Anything that does not carry
// the sentinel, or carries it with an unreadable payload, is plain text.
func DecodeContent(stored string) MessageContent {
	if !strings.HasPrefix(stored, ContentSentinel) {
		return TextContent(stored)
	}
	var p storedPayload
	if err := json.Unmarshal([]byte(strings.TrimPrefix(stored, ContentSentinel)), &p); err != nil {
		return TextContent(stored)
	}
	switch p.Type {
	case ContentText:
		return TextContent(p.Text)
	case ContentFile:
		return MessageContent{Kind: ContentFile, File: &FileContent{URL: p.URL, Name: p.Name, Size: p.Size, MimeType: p.MimeType}}
	case ContentAudio:
		return MessageContent{Kind: ContentAudio, Audio: &AudioContent{URL: p.URL, MimeType: p.MimeType, Duration: p.Duration}}
	}
	return TextContent(stored)
}

// SupportMessage is a direct operator/client message outside the external
// provider channel.
type SupportMessage struct {
	ID         string         `json:"id"`
	ClientID   int            `json:"client_id"`
	AdminID    *int           `json:"admin_id,omitempty"`
	FromClient bool           `json:"from_client"`
	Content    MessageContent `json:"content"`
	Read       bool           `json:"read"`
	CreatedAt  time.Time      `json:"created_at"`
}

type SupportMessageRepository interface {
	Save(ctx context.Context, message *SupportMessage) error
	ListByClient(ctx context.Context, clientID int, limit int) ([]*SupportMessage, error)
	// MarkRead flags messages sent by the other side as read and returns how
	// many changed.
	MarkRead(ctx context.Context, clientID int, readerIsClient bool) (int64, error)
	UnreadCount(ctx context.Context, clientID int, readerIsClient bool) (int, error)
}
