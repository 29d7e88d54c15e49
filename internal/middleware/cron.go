package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/leoygitty/GSR-App/internal/respond"
	"github.com/sirupsen/logrus"
)

// CronHeader выставляется планировщиком платформы для плановых вызовов.
const CronHeader = "x-vercel-cron"

const cronHint = "Use Authorization: Bearer <CRON_SECRET> or ?secret=<CRON_SECRET>. The x-vercel-cron header is honored only with TRUST_CRON_HEADER=true."

// CronAuthorizer защищает служебные эндпоинты. Разрешено, если секрет совпал
// (Bearer или ?secret=), либо пришел заголовок планировщика и trustHeader
// включен. Заголовок может подделать любой клиент, поэтому доверять ему
// можно только за прокси платформы, которая его вырезает из внешних запросов.
func CronAuthorizer(secret string, trustHeader bool, log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cronAuthorized(r, secret, trustHeader) {
				log.WithField("path", r.URL.Path).Warn("[CronAuth] Неавторизованный вызов служебного эндпоинта")
				respond.Message(w, http.StatusUnauthorized, "Unauthorized", cronHint)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func cronAuthorized(r *http.Request, secret string, trustHeader bool) bool {
	if trustHeader && r.Header.Get(CronHeader) == "1" {
		return true
	}
	if secret == "" {
		return false
	}
	if token, ok := BearerToken(r); ok && secretEqual(token, secret) {
		return true
	}
	if q := r.URL.Query().Get("secret"); q != "" && secretEqual(q, secret) {
		return true
	}
	return false
}

func secretEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
