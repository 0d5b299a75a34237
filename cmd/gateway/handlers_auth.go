package main

import (
	"net/http"

	accesserrors "github.com/quantedge/access-layer/infrastructure/errors"
	"github.com/quantedge/access-layer/infrastructure/httputil"
)

type verifyRequest struct {
	Token string `json:"token"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// handleAuthVerify implements POST /auth/verify: validate a bearer token
// and return the resolved identity, without requiring the caller to already
// be authenticated.
func (s *server) handleAuthVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	if req.Token == "" {
		s.writeError(w, r, accesserrors.MissingParameter("token"))
		return
	}

	info, err := s.verifier.UserInfoFromToken(r.Context(), req.Token)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, info)
}

// handleAuthRefresh implements POST /auth/refresh: exchange a refresh
// token for a fresh access+refresh pair, revoking the old refresh token.
func (s *server) handleAuthRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		s.writeError(w, r, accesserrors.MissingParameter("refresh_token"))
		return
	}

	pair, err := s.verifier.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, pair)
}

// handleAuthLogout implements POST /auth/logout: revoke the presented
// bearer token's jti so subsequent Verify calls reject it.
func (s *server) handleAuthLogout(w http.ResponseWriter, r *http.Request) {
	bearer := r.Header.Get("Authorization")
	if err := s.verifier.Logout(r.Context(), bearer); err != nil {
		s.writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"status": "logged_out"})
}
