package server

import (
	"context"
	"net/http"

	"tailscale.com/client/tailscale"
)

// UserInfo is the authenticated identity attached to each request.
type UserInfo struct {
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
}

type contextKey string

const (
	userInfoKey contextKey = "userInfo"
	userIDKey   contextKey = "userID"
)

// devUser is the identity used when no Tailscale client is configured.
var devUser = UserInfo{Login: "local", DisplayName: "Local Dev User"}

// SetTailscale installs the tsnet local client used to resolve request
// identities via WhoIs.
func (s *Server) SetTailscale(lc *tailscale.LocalClient) {
	s.whois = lc
}

// UserInfoFromContext returns the request identity, falling back to the dev
// user when none was set.
func UserInfoFromContext(ctx context.Context) UserInfo {
	if info, ok := ctx.Value(userInfoKey).(UserInfo); ok {
		return info
	}
	return devUser
}

// ResolveUser is middleware that attaches the request identity and its
// database user id to the context. Identity comes from Tailscale WhoIs when
// available, else the dev user.
func (s *Server) ResolveUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := devUser
		if s.whois != nil {
			if who, err := s.whois.WhoIs(r.Context(), r.RemoteAddr); err == nil && who.UserProfile != nil {
				info = UserInfo{
					Login:       who.UserProfile.LoginName,
					DisplayName: who.UserProfile.DisplayName,
				}
			}
		}

		uid, err := s.db.GetOrCreateUser(r.Context(), info.Login, info.DisplayName)
		if err != nil {
			s.log.Error("user resolution failed", "login", info.Login, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "user resolution failed"})
			return
		}

		ctx := context.WithValue(r.Context(), userInfoKey, info)
		ctx = context.WithValue(ctx, userIDKey, uid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// mustUserID extracts the resolved user id, writing a 500 when the identity
// middleware did not run.
func mustUserID(w http.ResponseWriter, r *http.Request) (int, bool) {
	uid, ok := r.Context().Value(userIDKey).(int)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "no user in context"})
		return 0, false
	}
	return uid, true
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, UserInfoFromContext(r.Context()))
}
