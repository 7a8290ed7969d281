package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"chainpay/pkg/jwt"
	"chainpay/pkg/logger"
)

type contextKey string

const UserIDKey contextKey = "user_id"

// JWTAuth пропускает только запросы с валидным Bearer токеном
func JWTAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			tokenString, found := strings.CutPrefix(auth, "Bearer ")
			if !found || tokenString == "" {
				writeJSONError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			userID, err := jwt.ParseToken(secret, tokenString)
			if err != nil {
				logger.Debug(r.Context(), "token rejected", zap.Error(err))
				writeJSONError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

func UserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(UserIDKey).(int64)
	return id, ok
}
