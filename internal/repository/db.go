// Package repository содержит доступ к PostgreSQL: снимки цен, предметы хранилища
// и advisory-блокировки.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

const (
	maxOpenConns    = 10              // Максимальное количество открытых соединений
	maxIdleConns    = 5               // Максимальное количество простаивающих соединений
	connMaxLifetime = 5 * time.Minute // Максимальное время жизни соединения
	connMaxIdleTime = 2 * time.Minute // Максимальное время простоя соединения
	connectTimeout  = 10 * time.Second
)

// NewPostgresDB создает пул соединений с PostgreSQL и проверяет его пингом.
func NewPostgresDB(ctx context.Context, dsn string, log logrus.FieldLogger) (*sqlx.DB, error) {
	log.Debug("[DB] Подключение к PostgreSQL...")

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err = db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			log.WithError(closeErr).Warn("[DB] Ошибка закрытия соединения после неудачного пинга")
		}
		return nil, fmt.Errorf("ошибка проверки соединения с БД (ping): %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	log.Info("[DB] Подключение к PostgreSQL установлено")
	return db, nil
}

// Коды ошибок PostgreSQL, означающие неверные входные данные.
const (
	pqCheckViolation    = "23514"
	pqNotNullViolation  = "23502"
	pqInvalidTextRepr   = "22P02"
	pqNumericOutOfRange = "22003"
)

// IsConstraintError сообщает, что БД отвергла значение по ограничению
// или формату (значит, ошибка клиента, а не хранилища).
func IsConstraintError(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch string(pqErr.Code) {
	case pqCheckViolation, pqNotNullViolation, pqInvalidTextRepr, pqNumericOutOfRange:
		return true
	default:
		return false
	}
}
