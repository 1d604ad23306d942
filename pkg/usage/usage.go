// Package usage produces rough token counts for upstream requests and replies.
package usage

import (
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/xingyunzhou/augment2api/pkg/translate"
)

// Estimate is the whitespace word count plus three quarters of the CJK
// unified ideographs (U+4E00..U+9FFF), rounded down.
func Estimate(text string) int {
	words := len(strings.Fields(text))
	cjk := 0
	for _, r := range text {
		if r >= 0x4E00 && r <= 0x9FFF {
			cjk++
		}
	}
	return words + cjk*3/4
}

type Counts struct {
	Prompt     int
	History    int
	Completion int
}

func ForRequest(req translate.UpstreamRequest, completion string) Counts {
	c := Counts{
		Prompt:     Estimate(req.Message),
		Completion: Estimate(completion),
	}
	for _, h := range req.ChatHistory {
		c.History += Estimate(h.RequestMessage) + Estimate(h.ResponseText)
	}
	return c
}

func (c Counts) Usage() openai.Usage {
	prompt := c.Prompt + c.History
	return openai.Usage{
		PromptTokens:     prompt,
		CompletionTokens: c.Completion,
		TotalTokens:      prompt + c.Completion,
	}
}
