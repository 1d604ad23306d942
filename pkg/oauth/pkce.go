// Package oauth implements the PKCE authorization-code flow used to mint
// upstream bearer tokens.
package oauth

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"net/url"
	"time"
)

const (
	verifierBytes = 32
	stateBytes    = 8
)

type State struct {
	CodeVerifier  string
	CodeChallenge string
	State         string
	CreatedAt     time.Time
}

func Base64URLEncode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// CodeChallenge is the S256 challenge for verifier.
func CodeChallenge(verifier string) string {
	digest := sha256.Sum256([]byte(verifier))
	return Base64URLEncode(digest[:])
}

func NewState(rand io.Reader, now time.Time) (State, error) {
	buf := make([]byte, verifierBytes+stateBytes)
	if _, err := io.ReadFull(rand, buf); err != nil {
		return State{}, fmt.Errorf("read random bytes: %w", err)
	}
	verifier := Base64URLEncode(buf[:verifierBytes])
	return State{
		CodeVerifier:  verifier,
		CodeChallenge: CodeChallenge(verifier),
		State:         Base64URLEncode(buf[verifierBytes:]),
		CreatedAt:     now,
	}, nil
}

// AuthorizeURL appends the PKCE query to base. Existing query parameters on
// base are kept.
func AuthorizeURL(base, clientID string, st State) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid authorize url: %w", err)
	}
	q := u.Query()
	q.Set("response_type", "code")
	q.Set("code_challenge", st.CodeChallenge)
	q.Set("client_id", clientID)
	q.Set("state", st.State)
	q.Set("prompt", "login")
	u.RawQuery = q.Encode()
	return u.String(), nil
}
