package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/ignite/dm-dispatch/internal/config"
	"github.com/ignite/dm-dispatch/internal/pkg/httputil"
	"github.com/ignite/dm-dispatch/internal/pkg/logger"
)

// DefaultWorkspace is used when API-key auth is disabled and the caller
// does not name a workspace.
const DefaultWorkspace = "default"

type workspaceKey struct{}

// WithWorkspace returns a context carrying workspaceID.
func WithWorkspace(ctx context.Context, workspaceID string) context.Context {
	return context.WithValue(ctx, workspaceKey{}, workspaceID)
}

// WorkspaceFromContext returns the workspace resolved by WorkspaceMiddleware.
func WorkspaceFromContext(ctx context.Context) string {
	if ws, ok := ctx.Value(workspaceKey{}).(string); ok && ws != "" {
		return ws
	}
	return DefaultWorkspace
}

// WorkspaceMiddleware resolves the caller's workspace from the X-API-Key
// header. With auth disabled the X-Workspace-ID header is trusted instead.
func WorkspaceMiddleware(cfg config.AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled {
				ws := strings.TrimSpace(r.Header.Get("X-Workspace-ID"))
				if ws == "" {
					ws = DefaultWorkspace
				}
				next.ServeHTTP(w, r.WithContext(WithWorkspace(r.Context(), ws)))
				return
			}

			key := r.Header.Get("X-API-Key")
			ws, ok := lookupAPIKey(cfg.APIKeys, key)
			if !ok {
				httputil.Unauthorized(w, "invalid or missing API key")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithWorkspace(r.Context(), ws)))
		})
	}
}

// lookupAPIKey compares in constant time against every configured key.
func lookupAPIKey(keys map[string]string, key string) (string, bool) {
	if key == "" {
		return "", false
	}
	var match string
	for k, ws := range keys {
		if subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
			match = ws
		}
	}
	return match, match != ""
}

// cronAuthorized checks the Authorization: Bearer <secret> header. An empty
// configured secret rejects every call.
func cronAuthorized(r *http.Request, secret string) bool {
	if secret == "" {
		logger.Warn("cron secret not configured, rejecting batch trigger")
		return false
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(secret)) == 1
}
