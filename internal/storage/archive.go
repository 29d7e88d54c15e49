// Package storage архивирует исходные выгрузки котировок в объектное хранилище.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"
)

// DefaultRegion - регион по умолчанию. Явный регион избавляет клиента
// от запроса расположения бакета.
const DefaultRegion = "us-east-1"

// ArchiveStorage сохраняет файлы в объектное хранилище.
type ArchiveStorage interface {
	UploadFile(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) error
}

// MinioConfig содержит параметры для подключения к MinIO.
type MinioConfig struct {
	Endpoint        string // Адрес MinIO (например, "localhost:9000")
	AccessKeyID     string // Логин
	SecretAccessKey string // Пароль
	UseSSL          bool
	BucketName      string
	Region          string
}

// MinioArchive реализует ArchiveStorage для MinIO и S3-совместимых хранилищ.
type MinioArchive struct {
	client     *minio.Client
	bucketName string
	log        logrus.FieldLogger
}

// NewMinioArchive создает клиент и при необходимости бакет.
func NewMinioArchive(ctx context.Context, cfg MinioConfig, log logrus.FieldLogger) (*MinioArchive, error) {
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}
	log.WithField("endpoint", cfg.Endpoint).Debug("[Archive] Инициализация клиента MinIO")

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации клиента MinIO: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("ошибка проверки существования бакета '%s': %w", cfg.BucketName, err)
	}
	if !exists {
		log.WithField("bucket", cfg.BucketName).Info("[Archive] Бакет не найден, создаем")
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("ошибка создания бакета '%s': %w", cfg.BucketName, err)
		}
	}

	log.WithField("bucket", cfg.BucketName).Info("[Archive] Архив исходных данных подключен")
	return &MinioArchive{client: client, bucketName: cfg.BucketName, log: log}, nil
}

// UploadFile загружает объект в бакет архива.
func (a *MinioArchive) UploadFile(
	ctx context.Context,
	objectKey string,
	reader io.Reader,
	size int64,
	contentType string,
) error {
	info, err := a.client.PutObject(ctx, a.bucketName, objectKey, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		a.log.WithError(err).WithField("key", objectKey).Error("[Archive] Ошибка загрузки файла")
		return fmt.Errorf("ошибка загрузки файла в MinIO: %w", err)
	}

	a.log.WithFields(logrus.Fields{
		"key":  objectKey,
		"size": info.Size,
		"etag": info.ETag,
	}).Info("[Archive] Файл загружен")
	return nil
}

// BackfillKey строит ключ объекта для исходного CSV загрузки истории:
// backfill/YYYY/MM/DD/<run>/<symbol>.csv.
func BackfillKey(at time.Time, runID, symbol string) string {
	at = at.UTC()
	return path.Join("backfill", at.Format("2006/01/02"), runID, strings.ToLower(symbol)+".csv")
}

var _ ArchiveStorage = (*MinioArchive)(nil)
