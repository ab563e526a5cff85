package domain

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Role identifies who authored a turn in the conversation history.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// SegmentKind classifies a content segment.
type SegmentKind string

const (
	SegmentText  SegmentKind = "text"
	SegmentImage SegmentKind = "image"
)

// Segment is one typed unit of content inside a turn: plain text, or an
// image carried inline as a data URL. Segments marshal to the OpenAI
// chat-completions part shape ({"type":"text",...} / {"type":"image_url",...}),
// which is also the persisted snapshot format.
type Segment struct {
	Kind SegmentKind
	Text string // Kind == SegmentText
	URL  string // Kind == SegmentImage: data:<mime>;base64,<payload>
}

// TextSegment builds a text segment.
func TextSegment(text string) Segment {
	return Segment{Kind: SegmentText, Text: text}
}

// ImageSegment builds an image segment from raw bytes and a MIME type.
func ImageSegment(data []byte, mimeType string) Segment {
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	encoded := base64.StdEncoding.EncodeToString(data)
	return Segment{Kind: SegmentImage, URL: "data:" + mimeType + ";base64," + encoded}
}

type segmentWire struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *imageURLWire `json:"image_url,omitempty"`
}

type imageURLWire struct {
	URL string `json:"url"`
}

func (s Segment) MarshalJSON() ([]byte, error) {
	switch s.Kind {
	case SegmentText:
		return json.Marshal(segmentWire{Type: "text", Text: s.Text})
	case SegmentImage:
		return json.Marshal(segmentWire{Type: "image_url", ImageURL: &imageURLWire{URL: s.URL}})
	default:
		return nil, fmt.Errorf("unknown segment kind %q", s.Kind)
	}
}

func (s *Segment) UnmarshalJSON(data []byte) error {
	var wire segmentWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	switch wire.Type {
	case "text":
		*s = Segment{Kind: SegmentText, Text: wire.Text}
	case "image_url":
		var url string
		if wire.ImageURL != nil {
			url = wire.ImageURL.URL
		}
		*s = Segment{Kind: SegmentImage, URL: url}
	default:
		return fmt.Errorf("unknown segment type %q", wire.Type)
	}
	return nil
}

// Content is the tagged variant a turn carries: either a plain string or an
// ordered segment sequence. Parts == nil means plain text. On the wire it is
// either a JSON string or a JSON array of parts, matching both the OpenAI
// request format and the persisted state format.
type Content struct {
	Text  string
	Parts []Segment
}

// PlainText wraps a bare string as plain content.
func PlainText(text string) Content {
	return Content{Text: text}
}

// SegmentContent wraps an ordered segment sequence.
func SegmentContent(parts []Segment) Content {
	return Content{Parts: parts}
}

// IsPlain reports whether the content is a bare string.
func (c Content) IsPlain() bool { return c.Parts == nil }

// TextFragments returns the non-empty text pieces of the content in order,
// skipping image segments.
func (c Content) TextFragments() []string {
	if c.IsPlain() {
		trimmed := strings.TrimSpace(c.Text)
		if trimmed == "" {
			return nil
		}
		return []string{trimmed}
	}
	var fragments []string
	for _, part := range c.Parts {
		if part.Kind != SegmentText {
			continue
		}
		if trimmed := strings.TrimSpace(part.Text); trimmed != "" {
			fragments = append(fragments, trimmed)
		}
	}
	return fragments
}

// JoinedText returns all text fragments joined with a single space.
func (c Content) JoinedText() string {
	return strings.Join(c.TextFragments(), " ")
}

// AppendContext extends the content with an additional block of text. Plain
// content is concatenated with a blank-line separator; segmented content
// gains one more text segment. The existing content is never replaced.
func (c *Content) AppendContext(block string) {
	if block == "" {
		return
	}
	if c.IsPlain() {
		if c.Text == "" {
			c.Text = block
			return
		}
		c.Text = c.Text + "\n\n" + block
		return
	}
	c.Parts = append(c.Parts, TextSegment(block))
}

func (c Content) MarshalJSON() ([]byte, error) {
	if c.IsPlain() {
		return json.Marshal(c.Text)
	}
	return json.Marshal(c.Parts)
}

func (c *Content) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*c = Content{Text: text}
		return nil
	}
	var parts []Segment
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("content is neither string nor part list: %w", err)
	}
	*c = Content{Parts: parts}
	return nil
}

// Turn is one complete message attributed to a single role.
type Turn struct {
	Role    Role    `json:"role"`
	Content Content `json:"content"`
}

// SystemTurn builds the instruction turn that pins history position zero.
func SystemTurn(prompt string) Turn {
	return Turn{Role: RoleSystem, Content: PlainText(prompt)}
}

// AssistantTurn wraps a model reply.
func AssistantTurn(text string) Turn {
	return Turn{Role: RoleAssistant, Content: PlainText(text)}
}
