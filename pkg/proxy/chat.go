package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/xingyunzhou/augment2api/pkg/credstore"
	"github.com/xingyunzhou/augment2api/pkg/relay"
	"github.com/xingyunzhou/augment2api/pkg/translate"
	"github.com/xingyunzhou/augment2api/pkg/usage"
)

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := s.now()
	mode := "batch"
	outcome := "error"
	defer func() {
		s.metrics.chatRequests.WithLabelValues(mode, outcome).Inc()
		s.metrics.chatDuration.WithLabelValues(mode).Observe(s.now().Sub(start).Seconds())
	}()

	tok, err := s.pool.SelectRandomToken(ctx)
	if errors.Is(err, credstore.ErrEmptyPool) {
		outcome = "no_token"
		writeStatusError(w, http.StatusOK, err.Error())
		return
	}
	if err != nil {
		slog.Error("select token failed", "error", err)
		writeStatusError(w, http.StatusInternalServerError, "request failed: "+err.Error())
		return
	}

	var req openai.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		outcome = "bad_request"
		writeStatusError(w, http.StatusOK, "invalid request body: "+err.Error())
		return
	}
	in := translate.FromOpenAI(req)
	if in.Stream {
		mode = "stream"
	}
	upReq := s.translator.ToUpstreamRequest(in)

	body, err := s.upstream.ChatStream(ctx, tok, upReq)
	if err != nil {
		slog.Warn("upstream call failed", "tenant_url", tok.TenantURL, "error", err)
		writeStatusError(w, http.StatusInternalServerError, "request failed: "+err.Error())
		return
	}
	defer body.Close()

	meta := relay.NewMeta(in.Model, s.now())
	meta.OnFragment = s.metrics.fragments.Inc
	meta.OnMalformed = s.metrics.malformedLines.Inc

	if in.Stream {
		res, err := relay.Stream(ctx, w, body, meta)
		if err != nil {
			outcome = streamOutcome(ctx, err)
			slog.Debug("stream ended early", "id", meta.ID, "outcome", outcome, "fragments", res.Fragments, "error", err)
			return
		}
		outcome = "ok"
		slog.Debug("stream relayed", "id", meta.ID, "fragments", res.Fragments, "malformed", res.Malformed, "done", res.Done)
		return
	}

	res, err := relay.Collect(ctx, body, meta)
	if err != nil {
		writeStatusError(w, http.StatusInternalServerError, "request failed: "+err.Error())
		return
	}
	counts := usage.ForRequest(upReq, res.Text)
	u := counts.Usage()
	s.metrics.estimatedTokens.WithLabelValues("prompt").Add(float64(u.PromptTokens))
	s.metrics.estimatedTokens.WithLabelValues("completion").Add(float64(u.CompletionTokens))
	outcome = "ok"
	writeJSON(w, http.StatusOK, relay.Response(meta, res.Text, u))
}

// streamOutcome tells a client that went away from an upstream body that
// failed mid-stream.
func streamOutcome(ctx context.Context, err error) string {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, relay.ErrClientWrite) {
		return "client_gone"
	}
	return "upstream_error"
}
