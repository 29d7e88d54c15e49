package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/leoygitty/GSR-App/internal/middleware"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
)

func TestCronAuthorizer(t *testing.T) {
	tests := []struct {
		name       string
		secret     string
		trust      bool
		target     string
		headers    map[string]string
		wantStatus int
	}{
		{name: "Заголовок планировщика", secret: "s3cret", trust: true, target: "/api/cron/refresh", headers: map[string]string{"x-vercel-cron": "1"}, wantStatus: http.StatusOK},
		{name: "Заголовок планировщика без секрета", trust: true, target: "/api/cron/refresh", headers: map[string]string{"x-vercel-cron": "1"}, wantStatus: http.StatusOK},
		{name: "Bearer с секретом", secret: "s3cret", target: "/api/cron/refresh", headers: map[string]string{"Authorization": "Bearer s3cret"}, wantStatus: http.StatusOK},
		{name: "Секрет в query", secret: "s3cret", target: "/api/cron/backfill?secret=s3cret", wantStatus: http.StatusOK},
		{name: "Неверный секрет", secret: "s3cret", target: "/api/cron/refresh?secret=nope", wantStatus: http.StatusUnauthorized},
		{name: "Неверный Bearer", secret: "s3cret", target: "/api/cron/refresh", headers: map[string]string{"Authorization": "Bearer nope"}, wantStatus: http.StatusUnauthorized},
		{name: "Секрет не настроен", target: "/api/cron/refresh?secret=", wantStatus: http.StatusUnauthorized},
		{name: "Заголовок без доверия отвергается", secret: "s3cret", target: "/api/cron/backfill", headers: map[string]string{"x-vercel-cron": "1"}, wantStatus: http.StatusUnauthorized},
		{name: "Заголовок без доверия и без секрета", target: "/api/cron/refresh", headers: map[string]string{"x-vercel-cron": "1"}, wantStatus: http.StatusUnauthorized},
		{name: "Секрет работает и без доверия к заголовку", secret: "s3cret", target: "/api/cron/refresh", headers: map[string]string{"x-vercel-cron": "1", "Authorization": "Bearer s3cret"}, wantStatus: http.StatusOK},
		{name: "Неверное значение заголовка", secret: "s3cret", trust: true, target: "/api/cron/refresh", headers: map[string]string{"x-vercel-cron": "true"}, wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, _ := test.NewNullLogger()
			h := middleware.CronAuthorizer(tt.secret, tt.trust, logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusUnauthorized {
				assert.Contains(t, rec.Body.String(), "CRON_SECRET")
			}
		})
	}
}
