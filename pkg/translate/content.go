package translate

import (
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

type contentKind uint8

const (
	contentPlain contentKind = iota
	contentParts
)

// ContentPart is one element of a structured message body. Text is nil for
// parts that carry no text, such as images.
type ContentPart struct {
	Kind string
	Text *string
}

// Content is either plain text or a list of parts.
type Content struct {
	kind  contentKind
	plain string
	parts []ContentPart
}

func PlainText(s string) Content {
	return Content{kind: contentPlain, plain: s}
}

func PartList(parts ...ContentPart) Content {
	return Content{kind: contentParts, parts: parts}
}

func TextPart(s string) ContentPart {
	return ContentPart{Kind: string(openai.ChatMessagePartTypeText), Text: &s}
}

func (c Content) IsPartList() bool { return c.kind == contentParts }

func (c Content) Parts() []ContentPart { return c.parts }

// Text flattens the content. Parts without text contribute nothing.
func (c Content) Text() string {
	if c.kind == contentPlain {
		return c.plain
	}
	var b strings.Builder
	for _, p := range c.parts {
		if p.Text != nil {
			b.WriteString(*p.Text)
		}
	}
	return b.String()
}

type ChatTurn struct {
	Role    string
	Content Content
}

// Inbound is the part of an OpenAI chat request the gateway acts on.
type Inbound struct {
	Model    string
	Messages []ChatTurn
	Stream   bool
}

// FromOpenAI converts a decoded OpenAI request.
func FromOpenAI(req openai.ChatCompletionRequest) Inbound {
	in := Inbound{
		Model:    req.Model,
		Stream:   req.Stream,
		Messages: make([]ChatTurn, 0, len(req.Messages)),
	}
	for _, m := range req.Messages {
		turn := ChatTurn{Role: m.Role, Content: PlainText(m.Content)}
		if m.MultiContent != nil {
			parts := make([]ContentPart, 0, len(m.MultiContent))
			for _, p := range m.MultiContent {
				part := ContentPart{Kind: string(p.Type)}
				if p.Type == openai.ChatMessagePartTypeText || p.Text != "" {
					text := p.Text
					part.Text = &text
				}
				parts = append(parts, part)
			}
			turn.Content = PartList(parts...)
		}
		in.Messages = append(in.Messages, turn)
	}
	return in
}
