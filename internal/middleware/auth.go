package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/Dan9191/advance-service/internal/config"
	"github.com/Dan9191/advance-service/internal/service"
	"github.com/sirupsen/logrus"
)

type contextKey string

const actorKey contextKey = "actor"

// Actor is the authenticated caller
type Actor struct {
	UserID int64
	Admin  bool
}

// ActorFromContext returns the caller stored by AuthMiddleware
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey).(Actor)
	return actor, ok
}

// WithActor stores the caller in the context
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// AuthMiddleware rejects requests without a valid bearer token
func AuthMiddleware(cfg *config.Config, log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			tokenString, found := strings.CutPrefix(header, "Bearer ")
			if !found || tokenString == "" {
				http.Error(w, "Missing bearer token", http.StatusUnauthorized)
				return
			}

			claims, err := service.ParseToken(tokenString, cfg.JWTSecret)
			if err != nil {
				log.WithField("path", r.URL.Path).Debugf("Rejected token: %v", err)
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}
			userID, err := claims.UserID()
			if err != nil {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			ctx := WithActor(r.Context(), Actor{UserID: userID, Admin: claims.Admin})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin lets only administrators through; it must run after AuthMiddleware
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFromContext(r.Context())
		if !ok || !actor.Admin {
			http.Error(w, "Administrator access required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
