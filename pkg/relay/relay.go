package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const sseDone = "data: [DONE]\n\n"

// ErrClientWrite marks a Stream failure caused by the downstream client,
// as opposed to the upstream body.
var ErrClientWrite = errors.New("write to client")

// Meta labels the chunks produced for one request.
type Meta struct {
	ID      string
	Model   string
	Created int64
	// OnFragment, when set, is called for every relayed fragment.
	OnFragment func()
	// OnMalformed, when set, is called for every skipped upstream line.
	OnMalformed func()
}

// NewMeta stamps an id of the form chatcmpl-<unix ms>.
func NewMeta(model string, now time.Time) Meta {
	return Meta{
		ID:      "chatcmpl-" + strconv.FormatInt(now.UnixMilli(), 10),
		Model:   model,
		Created: now.Unix(),
	}
}

type Result struct {
	Text      string
	Fragments int
	Malformed int
	// Done is true when the upstream sent a done fragment before EOF.
	Done bool
}

func (m Meta) chunk(frag Fragment) openai.ChatCompletionStreamResponse {
	var finish openai.FinishReason
	if frag.Done {
		finish = openai.FinishReasonStop
	}
	return openai.ChatCompletionStreamResponse{
		ID:      m.ID,
		Object:  "chat.completion.chunk",
		Created: m.Created,
		Model:   m.Model,
		Choices: []openai.ChatCompletionStreamChoice{{
			Index: 0,
			Delta: openai.ChatCompletionStreamChoiceDelta{
				Role:    openai.ChatMessageRoleAssistant,
				Content: frag.Text,
			},
			FinishReason: finish,
		}},
	}
}

// Stream writes one SSE event per upstream fragment and finishes with the
// [DONE] sentinel. It stops reading upstream as soon as a write fails.
func Stream(ctx context.Context, w http.ResponseWriter, body io.Reader, meta Meta) (Result, error) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}

	fr := NewFragmentReader(body)
	fr.OnMalformed = meta.OnMalformed
	var res Result
	var text strings.Builder
	finish := func(err error) (Result, error) {
		res.Text = text.String()
		res.Malformed = fr.Malformed()
		return res, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return finish(err)
		}
		frag, err := fr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return finish(fmt.Errorf("read upstream: %w", err))
		}
		text.WriteString(frag.Text)
		res.Fragments++
		if meta.OnFragment != nil {
			meta.OnFragment()
		}
		b, err := json.Marshal(meta.chunk(frag))
		if err != nil {
			return finish(fmt.Errorf("encode chunk: %w", err))
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
			return finish(fmt.Errorf("%w: %w", ErrClientWrite, err))
		}
		if flusher != nil {
			flusher.Flush()
		}
		if frag.Done {
			res.Done = true
			break
		}
	}
	if _, err := io.WriteString(w, sseDone); err != nil {
		return finish(fmt.Errorf("%w: %w", ErrClientWrite, err))
	}
	if flusher != nil {
		flusher.Flush()
	}
	return finish(nil)
}

// Collect accumulates fragment text until done or EOF.
func Collect(ctx context.Context, body io.Reader, meta Meta) (Result, error) {
	fr := NewFragmentReader(body)
	fr.OnMalformed = meta.OnMalformed
	var res Result
	var text strings.Builder
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		frag, err := fr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, fmt.Errorf("read upstream: %w", err)
		}
		text.WriteString(frag.Text)
		res.Fragments++
		if meta.OnFragment != nil {
			meta.OnFragment()
		}
		if frag.Done {
			res.Done = true
			break
		}
	}
	res.Text = text.String()
	res.Malformed = fr.Malformed()
	return res, nil
}

// Response builds the non-streaming completion object.
func Response(meta Meta, text string, usage openai.Usage) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		ID:      meta.ID,
		Object:  "chat.completion",
		Created: meta.Created,
		Model:   meta.Model,
		Choices: []openai.ChatCompletionChoice{{
			Index: 0,
			Message: openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: text,
			},
			FinishReason: openai.FinishReasonStop,
		}},
		Usage: usage,
	}
}
