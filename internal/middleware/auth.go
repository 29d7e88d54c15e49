package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/leoygitty/GSR-App/internal/apperr"
	"github.com/leoygitty/GSR-App/internal/respond"
	"github.com/sirupsen/logrus"
)

// Тип для ключа контекста.
type contextKey string

// UserIDKey - ключ для хранения id пользователя (subject токена) в контексте.
const UserIDKey contextKey = "userID"

// TokenVerifier проверяет bearer-токен и возвращает subject.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (string, error)
}

// Authenticator пропускает запрос дальше только с валидным bearer-токеном
// и кладет subject в контекст.
func Authenticator(verifier TokenVerifier, log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				log.Debug("[AuthMiddleware] Bearer-токен отсутствует")
				respond.Error(w, log, apperr.Auth("Missing Bearer token", nil))
				return
			}

			userID, err := verifier.VerifyToken(r.Context(), token)
			if err != nil {
				log.WithError(err).Info("[AuthMiddleware] Токен отклонен")
				if apperr.KindOf(err) != apperr.KindAuth {
					err = apperr.Auth("Unauthorized", err)
				}
				respond.Error(w, log, err)
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken извлекает токен из заголовка "Authorization: Bearer <token>".
func BearerToken(r *http.Request) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", false
	}
	return token, true
}

// GetUserIDFromContext извлекает id пользователя из контекста запроса.
func GetUserIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok && userID != ""
}
