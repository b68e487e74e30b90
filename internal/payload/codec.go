// Package payload encodes message content for the wire. Text-only
// messages stay plain strings so other clients render them untouched;
// messages with attachments become a small JSON envelope. Decoding is
// forgiving: anything that is not a well-formed envelope is treated as
// plain text.
package payload

import (
	"encoding/json"
	"strings"
)

// AttachmentKind classifies an attachment for rendering.
type AttachmentKind string

const (
	KindImage AttachmentKind = "image"
	KindVideo AttachmentKind = "video"
	KindAudio AttachmentKind = "audio"
	KindFile  AttachmentKind = "file"
)

// Attachment references an uploaded file by URL.
type Attachment struct {
	URL  string         `json:"url"`
	Mime string         `json:"mime,omitempty"`
	Kind AttachmentKind `json:"kind,omitempty"`
	Name string         `json:"name,omitempty"`
	Size int64          `json:"size,omitempty"`
}

// envelope is the structured wire shape for messages with attachments.
type envelope struct {
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments"`
}

// InferKind maps a MIME type to an attachment kind.
func InferKind(mime string) AttachmentKind {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return KindImage
	case strings.HasPrefix(mime, "video/"):
		return KindVideo
	case strings.HasPrefix(mime, "audio/"):
		return KindAudio
	default:
		return KindFile
	}
}

// sanitize normalizes one decoded attachment. Attachments without a URL
// are unusable and report false.
func sanitize(a Attachment) (Attachment, bool) {
	if a.URL == "" {
		return Attachment{}, false
	}
	if a.Mime == "" {
		a.Mime = "application/octet-stream"
	}
	switch a.Kind {
	case KindImage, KindVideo, KindAudio, KindFile:
	default:
		a.Kind = InferKind(a.Mime)
	}
	return a, true
}

// Encode produces the wire content for a message. With no attachments
// the text passes through verbatim.
func Encode(text string, attachments []Attachment) (string, error) {
	if len(attachments) == 0 {
		return text, nil
	}
	clean := make([]Attachment, 0, len(attachments))
	for _, a := range attachments {
		if s, ok := sanitize(a); ok {
			clean = append(clean, s)
		}
	}
	if len(clean) == 0 {
		return text, nil
	}
	raw, err := json.Marshal(envelope{Text: text, Attachments: clean})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Decode parses wire content into text and attachments. Content that is
// not a structured envelope, including JSON of some other shape, comes
// back unchanged as plain text.
func Decode(content string) (string, []Attachment) {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "{") {
		return content, nil
	}

	var env envelope
	if err := json.Unmarshal([]byte(trimmed), &env); err != nil {
		return content, nil
	}
	if env.Attachments == nil {
		return content, nil
	}

	clean := make([]Attachment, 0, len(env.Attachments))
	for _, a := range env.Attachments {
		if s, ok := sanitize(a); ok {
			clean = append(clean, s)
		}
	}
	if len(clean) == 0 {
		return content, nil
	}
	return env.Text, clean
}
