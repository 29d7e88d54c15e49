// Command metalmetric - HTTP API цен драгметаллов и личного хранилища предметов.
package main

import (
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/leoygitty/GSR-App/internal/handlers"
	appmiddleware "github.com/leoygitty/GSR-App/internal/middleware"
	"github.com/sirupsen/logrus"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// routes - обработчики и ключи, нужные роутеру.
type routes struct {
	price      *handlers.PriceHandler
	cron       *handlers.CronHandler
	vault      *handlers.VaultItemHandler
	verifier   appmiddleware.TokenVerifier
	cronSecret string
	trustCron  bool
}

// setupRouter настраивает и возвращает роутер chi.
func setupRouter(rt routes, log logrus.FieldLogger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(appmiddleware.RequestLogger(log))
	r.Use(middleware.Recoverer)

	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("pong\n"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}))

		// Публичные цены
		r.Get("/latest", rt.price.Latest)
		r.Get("/spot", rt.price.Spot)

		// Вызовы планировщика
		r.Route("/cron", func(r chi.Router) {
			r.Use(appmiddleware.CronAuthorizer(rt.cronSecret, rt.trustCron, log))
			r.Get("/refresh", rt.cron.Refresh)
			r.Get("/backfill", rt.cron.Backfill)
			r.Post("/backfill", rt.cron.Backfill)
		})

		// Хранилище пользователя (требует токен)
		r.Route("/vault/items", func(r chi.Router) {
			r.Use(appmiddleware.Authenticator(rt.verifier, log))
			r.Get("/", rt.vault.List)
			r.Post("/", rt.vault.Create)
			r.Post("/reorder", rt.vault.Reorder)
			r.Patch("/{id}", rt.vault.Update)
			r.Delete("/{id}", rt.vault.Delete)
		})
	})
	return r
}
