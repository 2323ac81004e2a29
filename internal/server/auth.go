/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
)

// Session tokens are "<payload>.<signature>", both base64url, signed with
// HMAC-SHA256 keyed by the remote-control token.
type tokenClaims struct {
	Sub string `json:"sub"`
	Exp int64  `json:"exp"` // unix seconds
}

const (
	defaultSessionTTL = time.Hour
	maxSessionTTL     = 24 * time.Hour
)

var (
	errMissingToken = errors.New("missing bearer token")
	errBadToken     = errors.New("invalid token")
)

func signToken(secret, subject string, exp time.Time) (string, error) {
	b, err := json.Marshal(tokenClaims{Sub: subject, Exp: exp.Unix()})
	if err != nil {
		return "", err
	}
	h := hmac.New(sha256.New, []byte(secret))
	_, _ = h.Write(b)
	return base64.RawURLEncoding.EncodeToString(b) + "." + base64.RawURLEncoding.EncodeToString(h.Sum(nil)), nil
}

func verifyToken(secret, token string, now time.Time) (string, error) {
	payload, sig, ok := strings.Cut(token, ".")
	if !ok {
		return "", errBadToken
	}
	payloadB, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return "", errBadToken
	}
	sigB, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return "", errBadToken
	}
	h := hmac.New(sha256.New, []byte(secret))
	_, _ = h.Write(payloadB)
	if !hmac.Equal(h.Sum(nil), sigB) {
		return "", errBadToken
	}
	var claims tokenClaims
	if err := json.Unmarshal(payloadB, &claims); err != nil {
		return "", errBadToken
	}
	if claims.Exp < now.Unix() {
		return "", errors.New("token expired")
	}
	if claims.Sub == "" {
		claims.Sub = "remote"
	}
	return claims.Sub, nil
}

// authenticate accepts the remote token itself or a session token signed
// with it. Browsers cannot set headers on websocket requests, so a
// "token" query parameter is accepted as well.
func (s *Server) authenticate(r *http.Request) (string, error) {
	tok := r.URL.Query().Get("token")
	if auth := r.Header.Get("Authorization"); auth != "" {
		const prefix = "bearer "
		if !strings.HasPrefix(strings.ToLower(auth), prefix) {
			return "", errMissingToken
		}
		tok = strings.TrimSpace(auth[len(prefix):])
	}
	if tok == "" {
		return "", errMissingToken
	}
	if subtle.ConstantTimeCompare([]byte(tok), []byte(s.token)) == 1 {
		return "owner", nil
	}
	return verifyToken(s.token, tok, s.clk.Now())
}

// requireAuth is a mux middleware; it is a no-op when no token is set.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			next.ServeHTTP(w, r)
			return
		}
		if _, err := s.authenticate(r); err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="gochatpresenter"`)
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// POST /api/auth/token {"subject": "...", "ttl_seconds": 3600} issues a
// session token for a client that already holds the remote token.
func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	if s.token == "" {
		writeError(w, http.StatusNotFound, errors.New("no remote token configured"))
		return
	}
	var req struct {
		Subject    string `json:"subject"`
		TTLSeconds int64  `json:"ttl_seconds"`
	}
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Subject == "" {
		req.Subject = "remote"
	}
	ttl := time.Duration(req.TTLSeconds) * time.Second
	if ttl <= 0 || ttl > maxSessionTTL {
		ttl = defaultSessionTTL
	}
	exp := s.clk.Now().Add(ttl)
	tok, err := signToken(s.token, req.Subject, exp)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      tok,
		"expires_at": exp.UTC().Format(time.RFC3339),
	})
}
