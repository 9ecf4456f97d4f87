package chi

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"
)

// DefaultExemptPaths bypass authentication.
var DefaultExemptPaths = []string{"/health", "/metrics"}

type apiKey struct {
	digest [sha256.Size]byte
	id     string // первые 8 hex-символов sha256, безопасно логировать
}

// BearerAuthMiddleware validates "Authorization: Bearer <key>" against apiKeys.
// Empty keys are ignored; with no keys left, authentication is disabled.
// The matched key's fingerprint is attached to the request's wide event as api_key_id.
func BearerAuthMiddleware(apiKeys []string, exempt ...string) func(http.Handler) http.Handler {
	keys := make([]apiKey, 0, len(apiKeys))
	for _, k := range apiKeys {
		if k != "" {
			d := sha256.Sum256([]byte(k))
			keys = append(keys, apiKey{digest: d, id: hex.EncodeToString(d[:4])})
		}
	}
	skip := make(map[string]struct{}, len(exempt))
	for _, p := range exempt {
		skip[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		if len(keys) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skip[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			token, msg := bearerToken(r.Header.Get("Authorization"))
			if msg == "" {
				if id, ok := matchKey(keys, token); ok {
					if ev := eventFromContext(r.Context()); ev != nil {
						ev.apiKeyID = id
					}
					next.ServeHTTP(w, r)
					return
				}
				msg = "invalid api key"
			}
			w.Header().Set("WWW-Authenticate", `Bearer realm="lexrag"`)
			writeError(w, http.StatusUnauthorized, CodeUnauthorized, msg)
		})
	}
}

// bearerToken extracts the token. The scheme is case-insensitive (RFC 7235).
func bearerToken(header string) (token, problem string) {
	if header == "" {
		return "", "missing authorization header"
	}
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", "authorization header must use Bearer scheme"
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", "empty bearer token"
	}
	return token, ""
}

// matchKey compares digests in constant time against every key.
func matchKey(keys []apiKey, token string) (string, bool) {
	d := sha256.Sum256([]byte(token))
	id := ""
	for _, k := range keys {
		if subtle.ConstantTimeCompare(k.digest[:], d[:]) == 1 {
			id = k.id
		}
	}
	return id, id != ""
}
