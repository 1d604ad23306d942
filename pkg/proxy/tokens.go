package proxy

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/xingyunzhou/augment2api/pkg/credstore"
	"github.com/xingyunzhou/augment2api/pkg/oauth"
	"github.com/xingyunzhou/augment2api/pkg/version"
)

func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	authURL, _, err := s.exchanger.Begin(r.Context())
	if err != nil {
		slog.Error("begin oauth failed", "error", err)
		writeStatusError(w, http.StatusInternalServerError, "failed to start authorization")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "success",
		"authorizeUrl": authURL,
	})
}

type getTokenRequest struct {
	Code      string `json:"code"`
	State     string `json:"state"`
	TenantURL string `json:"tenant_url"`
}

func (s *Server) handleGetToken(w http.ResponseWriter, r *http.Request) {
	var req getTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeStatusError(w, http.StatusOK, "no code provided")
		return
	}
	token, err := s.exchanger.Complete(r.Context(), req.TenantURL, req.State, req.Code)
	var xe *oauth.ExchangeError
	switch {
	case err == nil:
	case errors.Is(err, oauth.ErrMissingInput),
		errors.Is(err, oauth.ErrExpiredOrUnknownState),
		errors.Is(err, credstore.ErrInvalidTenantURL):
		writeStatusError(w, http.StatusOK, err.Error())
		return
	case errors.As(err, &xe):
		writeStatusError(w, http.StatusInternalServerError, err.Error())
		return
	default:
		slog.Error("complete oauth failed", "error", err)
		writeStatusError(w, http.StatusInternalServerError, "failed to get token")
		return
	}
	s.refreshPoolGauge(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"token":  token,
	})
}

func (s *Server) handleGetTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := s.pool.Tokens(r.Context())
	if err != nil {
		slog.Error("list tokens failed", "error", err)
		writeStatusError(w, http.StatusInternalServerError, "failed to list tokens")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"tokens": tokens,
	})
}

func (s *Server) handleDeleteToken(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if unescaped, err := url.PathUnescape(token); err == nil {
		token = unescaped
	}
	if err := s.pool.DeleteToken(r.Context(), token); err != nil {
		slog.Error("delete token failed", "error", err)
		writeStatusError(w, http.StatusOK, "failed to delete token")
		return
	}
	s.refreshPoolGauge(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"status": "success"})
}

func (s *Server) handleModels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.models)
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, version.Current())
}
