package usage

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xingyunzhou/augment2api/pkg/translate"
)

func TestEstimate(t *testing.T) {
	cases := []struct {
		text string
		want int
	}{
		{"", 0},
		{"hello world", 2},
		{"  spaced\tout\nwords  ", 3},
		{"你好世界", 1 + 3},
		{"hi 你好", 2 + 1},
		{"中", 1 + 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Estimate(tc.text), "%q", tc.text)
	}
}

func TestForRequestUsage(t *testing.T) {
	req := translate.UpstreamRequest{
		Message: "one two three",
		ChatHistory: []translate.HistoryEntry{
			{RequestMessage: "a b", ResponseText: "c"},
		},
	}
	c := ForRequest(req, "done now")
	assert.Equal(t, Counts{Prompt: 3, History: 3, Completion: 2}, c)
	u := c.Usage()
	assert.Equal(t, 6, u.PromptTokens)
	assert.Equal(t, 2, u.CompletionTokens)
	assert.Equal(t, 8, u.TotalTokens)
}
