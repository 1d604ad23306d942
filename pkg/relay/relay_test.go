package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xingyunzhou/augment2api/pkg/config"
	"github.com/xingyunzhou/augment2api/pkg/credstore"
	"github.com/xingyunzhou/augment2api/pkg/translate"
)

const twoLineStream = "{\"text\":\"Hel\",\"done\":false}\n{\"text\":\"lo\",\"done\":true}\n"

func readAllFragments(t *testing.T, r io.Reader) ([]Fragment, *FragmentReader) {
	t.Helper()
	fr := NewFragmentReader(r)
	var out []Fragment
	for {
		f, err := fr.Next()
		if errors.Is(err, io.EOF) {
			return out, fr
		}
		require.NoError(t, err)
		out = append(out, f)
	}
}

func TestFragmentReaderSplitsAcrossReads(t *testing.T) {
	frags, fr := readAllFragments(t, iotest.OneByteReader(strings.NewReader(twoLineStream)))
	require.Len(t, frags, 2)
	assert.Equal(t, Fragment{Text: "Hel"}, frags[0])
	assert.Equal(t, Fragment{Text: "lo", Done: true}, frags[1])
	assert.Equal(t, 0, fr.Malformed())
}

func TestFragmentReaderSkipsMalformedAndBlank(t *testing.T) {
	calls := 0
	fr := NewFragmentReader(strings.NewReader("\n  \n{not json}\n[1,2]\n{\"text\":\"ok\"}\n"))
	fr.OnMalformed = func() { calls++ }
	f, err := fr.Next()
	require.NoError(t, err)
	assert.Equal(t, "ok", f.Text)
	_, err = fr.Next()
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 2, fr.Malformed())
	assert.Equal(t, 2, calls)
}

func TestFragmentReaderParsesUnterminatedTail(t *testing.T) {
	frags, _ := readAllFragments(t, strings.NewReader("{\"text\":\"a\"}\n{\"text\":\"b\",\"done\":true}"))
	require.Len(t, frags, 2)
	assert.True(t, frags[1].Done)
}

func TestStreamTwoLineExample(t *testing.T) {
	rec := httptest.NewRecorder()
	meta := Meta{ID: "chatcmpl-1", Model: "claude-3.7", Created: 10}
	res, err := Stream(context.Background(), rec, strings.NewReader(twoLineStream), meta)
	require.NoError(t, err)
	assert.Equal(t, "Hello", res.Text)
	assert.True(t, res.Done)
	assert.Equal(t, 2, res.Fragments)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

	events := strings.Split(strings.TrimSuffix(rec.Body.String(), "\n\n"), "\n\n")
	require.Len(t, events, 3)
	assert.Equal(t, "data: [DONE]", events[2])

	var first, second map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(events[0], "data: ")), &first))
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(events[1], "data: ")), &second))
	assert.Equal(t, "chat.completion.chunk", first["object"])
	assert.Equal(t, "chatcmpl-1", first["id"])
	c0 := first["choices"].([]any)[0].(map[string]any)
	assert.Nil(t, c0["finish_reason"])
	assert.Equal(t, "Hel", c0["delta"].(map[string]any)["content"])
	assert.Equal(t, "assistant", c0["delta"].(map[string]any)["role"])
	c1 := second["choices"].([]any)[0].(map[string]any)
	assert.Equal(t, "stop", c1["finish_reason"])
}

func TestStreamWritesDoneAtEOFWithoutDoneFragment(t *testing.T) {
	rec := httptest.NewRecorder()
	res, err := Stream(context.Background(), rec, strings.NewReader("{\"text\":\"x\"}\n"), Meta{ID: "id"})
	require.NoError(t, err)
	assert.False(t, res.Done)
	assert.True(t, strings.HasSuffix(rec.Body.String(), sseDone))
	assert.Equal(t, 1, strings.Count(rec.Body.String(), "[DONE]"))
}

func TestStreamIgnoresLinesAfterDone(t *testing.T) {
	rec := httptest.NewRecorder()
	res, err := Stream(context.Background(), rec, strings.NewReader(twoLineStream+"{\"text\":\"late\"}\n"), Meta{ID: "id"})
	require.NoError(t, err)
	assert.Equal(t, "Hello", res.Text)
	assert.NotContains(t, rec.Body.String(), "late")
}

type failingWriter struct {
	*httptest.ResponseRecorder
	writes int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	w.writes++
	return 0, errors.New("client gone")
}

func TestStreamStopsOnWriteFailure(t *testing.T) {
	w := &failingWriter{ResponseRecorder: httptest.NewRecorder()}
	_, err := Stream(context.Background(), w, strings.NewReader(twoLineStream), Meta{ID: "id"})
	require.ErrorIs(t, err, ErrClientWrite)
	assert.Equal(t, 1, w.writes)
}

func TestStreamUpstreamReadErrorIsNotClientWrite(t *testing.T) {
	body := io.MultiReader(strings.NewReader("{\"text\":\"a\"}\n"), iotest.ErrReader(io.ErrUnexpectedEOF))
	rec := httptest.NewRecorder()
	res, err := Stream(context.Background(), rec, body, Meta{ID: "id"})
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.False(t, errors.Is(err, ErrClientWrite))
	assert.Equal(t, 1, res.Fragments)
}

func TestCollect(t *testing.T) {
	fragments := 0
	meta := Meta{OnFragment: func() { fragments++ }}
	res, err := Collect(context.Background(), strings.NewReader("garbage\n"+twoLineStream), meta)
	require.NoError(t, err)
	assert.Equal(t, "Hello", res.Text)
	assert.Equal(t, 1, res.Malformed)
	assert.Equal(t, 2, fragments)

	resp := Response(NewMeta("claude-3.7", time.UnixMilli(1700000000123)), res.Text, openai.Usage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3})
	assert.Equal(t, "chatcmpl-1700000000123", resp.ID)
	assert.Equal(t, int64(1700000000), resp.Created)
	assert.Equal(t, "chat.completion", resp.Object)
	assert.Equal(t, "Hello", resp.Choices[0].Message.Content)
	assert.Equal(t, openai.FinishReasonStop, resp.Choices[0].FinishReason)
}

func TestClientChatStreamHeaders(t *testing.T) {
	var got http.Header
	var body translate.UpstreamRequest
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat-stream", r.URL.Path)
		got = r.Header.Clone()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = io.WriteString(w, twoLineStream)
	}))
	defer upstream.Close()

	c := NewClient(config.NewDefaultServerConfig().Upstream)
	c.Pick = func(n int) int { return n - 1 }
	rc, err := c.ChatStream(context.Background(),
		credstore.TokenRecord{Token: "tok", TenantURL: upstream.URL + "/"},
		translate.UpstreamRequest{Message: "hi"})
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, twoLineStream, string(b))

	assert.Equal(t, "Bearer tok", got.Get("Authorization"))
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.Equal(t, config.DefaultUserAgents[2], got.Get("User-Agent"))
	assert.Equal(t, "2", got.Get("x-api-version"))
	assert.Len(t, got.Get("x-request-id"), 36)
	assert.Len(t, got.Get("x-request-session-id"), 36)
	assert.Equal(t, "hi", body.Message)
}

func TestClientChatStreamNon2xx(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer upstream.Close()

	c := NewClient(config.NewDefaultServerConfig().Upstream)
	_, err := c.ChatStream(context.Background(), credstore.TokenRecord{Token: "t", TenantURL: upstream.URL + "/"}, translate.UpstreamRequest{})
	var ce *CallError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, http.StatusUnauthorized, ce.Status)
}

func TestClientChatStreamTransportError(t *testing.T) {
	c := NewClient(config.NewDefaultServerConfig().Upstream)
	_, err := c.ChatStream(context.Background(), credstore.TokenRecord{Token: "t", TenantURL: "http://127.0.0.1:1/"}, translate.UpstreamRequest{})
	var ce *CallError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 0, ce.Status)
}
