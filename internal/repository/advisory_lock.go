package repository

import (
	"context"
	"fmt"
	"hash/crc32"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

// Имена блокировок.
const (
	// LockDailyRefresh сериализует обновление снимка за текущий день.
	LockDailyRefresh = "gsr_daily_refresh"
	// LockBackfill сериализует загрузку истории.
	LockBackfill = "gsr_backfill"
)

const unlockTimeout = 5 * time.Second

// Locker - неблокирующая именованная блокировка.
// TryLock возвращает acquired=false, если блокировку держит кто-то другой.
// При acquired=true вызывающий обязан вызвать release.
type Locker interface {
	TryLock(ctx context.Context, name string) (release func(), acquired bool, err error)
}

// LockID переводит имя блокировки в ключ pg_advisory_lock.
func LockID(name string) int64 {
	return int64(crc32.ChecksumIEEE([]byte(name)))
}

// pgAdvisoryLocker использует сессионные advisory-блокировки PostgreSQL.
// Захват и освобождение выполняются на одном и том же соединении из пула.
type pgAdvisoryLocker struct {
	db  *sqlx.DB
	log logrus.FieldLogger
}

// NewPostgresLocker создает блокировку на pg_try_advisory_lock.
func NewPostgresLocker(db *sqlx.DB, log logrus.FieldLogger) Locker {
	return &pgAdvisoryLocker{db: db, log: log}
}

func (l *pgAdvisoryLocker) TryLock(ctx context.Context, name string) (func(), bool, error) {
	lockID := LockID(name)

	conn, err := l.db.Connx(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("ошибка получения соединения для блокировки: %w", err)
	}

	var acquired bool
	if err := conn.QueryRowxContext(ctx, `SELECT pg_try_advisory_lock($1)`, lockID).Scan(&acquired); err != nil {
		_ = conn.Close()
		return nil, false, fmt.Errorf("ошибка захвата блокировки %q: %w", name, err)
	}
	if !acquired {
		_ = conn.Close()
		l.log.WithField("lock", name).Debug("[Lock] Блокировка занята")
		return nil, false, nil
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			// Контекст запроса мог уже завершиться, освобождаем на своем
			unlockCtx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
			defer cancel()

			var unlocked bool
			if err := conn.QueryRowxContext(unlockCtx, `SELECT pg_advisory_unlock($1)`, lockID).Scan(&unlocked); err != nil {
				l.log.WithError(err).WithField("lock", name).Error("[Lock] Ошибка освобождения блокировки")
			} else if !unlocked {
				l.log.WithField("lock", name).Warn("[Lock] Блокировка уже не удерживалась")
			}
			if err := conn.Close(); err != nil {
				l.log.WithError(err).Warn("[Lock] Ошибка возврата соединения в пул")
			}
		})
	}
	return release, true, nil
}

// LocalLocker - блокировка в пределах процесса. Для тестов и одиночного запуска.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLocalLocker создает локальную блокировку.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*sync.Mutex)}
}

// TryLock захватывает именованный мьютекс без ожидания.
func (l *LocalLocker) TryLock(_ context.Context, name string) (func(), bool, error) {
	l.mu.Lock()
	m, ok := l.locks[name]
	if !ok {
		m = &sync.Mutex{}
		l.locks[name] = m
	}
	l.mu.Unlock()

	if !m.TryLock() {
		return nil, false, nil
	}
	var once sync.Once
	return func() { once.Do(m.Unlock) }, true, nil
}

var (
	_ Locker = (*pgAdvisoryLocker)(nil)
	_ Locker = (*LocalLocker)(nil)
)
