package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/leoygitty/GSR-App/internal/config"
	"github.com/leoygitty/GSR-App/internal/logger"
	"github.com/leoygitty/GSR-App/internal/models"
	"github.com/leoygitty/GSR-App/internal/respond"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	defaultReadHeaderTimeout = 5 * time.Second
	defaultReadTimeout       = 15 * time.Second
	defaultWriteTimeout      = 60 * time.Second
	defaultIdleTimeout       = 60 * time.Second
	shutdownTimeout          = 15 * time.Second
)

// app - общее состояние команд: конфигурация и логгер.
type app struct {
	v   *viper.Viper
	cfg *config.Config
	log *logrus.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}
	config.SetDefaults(a.v)

	root := &cobra.Command{
		Use:   "metalmetric",
		Short: "API цен драгметаллов и личного хранилища",
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.v)
			if err != nil {
				return err
			}
			if err = cfg.Validate(); err != nil {
				return err
			}
			a.cfg = cfg
			a.log = logger.New(cfg.LogLevel)
			respond.SetLogger(a.log)
			return nil
		},
		SilenceUsage: true,
	}
	if err := config.BindFlags(root.PersistentFlags(), a.v); err != nil {
		panic(err)
	}

	root.AddCommand(
		newServeCmd(a),
		newMigrateCmd(a),
		newRefreshCmd(a),
		newBackfillCmd(a),
	)
	return root
}

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Запустить HTTP-сервер",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
}

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Применить миграции схемы БД и выйти",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dsn, err := config.NormalizeDSN(a.cfg.DatabaseDSN, a.cfg.DBSSLMode)
			if err != nil {
				return err
			}
			db, err := newPostgresDB(cmd.Context(), dsn, a.log)
			if err != nil {
				return fmt.Errorf("ошибка инициализации БД: %w", err)
			}
			defer db.Close()
			return runMigrations(cmd.Context(), db.DB, a.log)
		},
	}
}

func newRefreshCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Обновить снимок цен за сегодня и вывести его",
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := setupDependencies(cmd.Context(), a.cfg, a.log)
			if err != nil {
				return err
			}
			defer deps.close(a.log)

			snap, err := deps.latest.Refresh(cmd.Context(), models.MethodScheduledRefresh)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), snap.ToResponse())
		},
	}
}

func newBackfillCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "backfill",
		Short: "Загрузить дневную историю цен из Stooq",
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := setupDependencies(cmd.Context(), a.cfg, a.log)
			if err != nil {
				return err
			}
			defer deps.close(a.log)

			summary, err := deps.backfill.Run(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), summary)
		},
	}
}

// serve запускает сервер и останавливает его по отмене ctx.
func (a *app) serve(ctx context.Context) error {
	a.log.Info("[Server] Запуск MetalMetric...")

	deps, err := setupDependencies(ctx, a.cfg, a.log)
	if err != nil {
		return fmt.Errorf("ошибка инициализации зависимостей: %w", err)
	}
	defer deps.close(a.log)

	server := newServer(":"+a.cfg.ServerPort, setupRouter(deps.routes(a.cfg, a.log), a.log))

	errCh := make(chan error, 1)
	go func() {
		fields := logrus.Fields{"port": a.cfg.ServerPort, "tls": a.cfg.TLSEnabled()}
		a.log.WithFields(fields).Info("[Server] Сервер слушает порт")
		if a.cfg.TLSEnabled() {
			errCh <- server.ListenAndServeTLS(a.cfg.TLSCertFile, a.cfg.TLSKeyFile)
			return
		}
		errCh <- server.ListenAndServe()
	}()

	select {
	case err = <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("ошибка запуска сервера: %w", err)
	case <-ctx.Done():
	}

	a.log.Info("[Server] Получен сигнал остановки, завершаем запросы...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err = server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка остановки сервера: %w", err)
	}
	a.log.Info("[Server] Сервер остановлен")
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
