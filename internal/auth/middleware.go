package auth

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
)

type contextKey int

const ctxRemoteIP contextKey = iota

const challenge = `Bearer realm="chatsync"`

// RequestRemoteIP returns the client IP from the context, or "".
func RequestRemoteIP(ctx context.Context) string {
	v, _ := ctx.Value(ctxRemoteIP).(string)
	return v
}

// Middleware rejects requests that do not carry one of keys as a Bearer
// token. Accepted requests get the client IP in their context.
func Middleware(keys *Keys, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			log := logger.With(slog.String("ip", ip), slog.String("path", r.URL.Path))

			token, ok := bearerToken(r)
			if !ok {
				log.Debug("rejected request without bearer token")
				deny(w, false)

				return
			}

			if !strings.HasPrefix(token, APIKeyPrefix) || !keys.Validate(token) {
				log.Debug("rejected invalid API key")
				deny(w, true)

				return
			}

			log.Debug("authenticated via API key")

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxRemoteIP, ip)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		return "", false
	}

	return token, true
}

func clientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return ip
}

// deny writes a 401. RFC 6750 section 3.1: the error attribute is only
// set when a token was presented.
func deny(w http.ResponseWriter, presented bool) {
	header := challenge
	if presented {
		header += `, error="invalid_token"`
	}

	w.Header().Set("WWW-Authenticate", header)
	w.WriteHeader(http.StatusUnauthorized)
}
