package logger_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/leoygitty/GSR-App/internal/logger"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Level(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		expected logrus.Level
	}{
		{"debug", "debug", logrus.DebugLevel},
		{"warn", "warn", logrus.WarnLevel},
		{"Пустой уровень", "", logrus.InfoLevel},
		{"Неизвестный уровень", "chatty", logrus.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, logger.New(tt.level).GetLevel())
		})
	}
}

func TestNewWithOutput_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithOutput("info", &buf)
	log.WithField("provider", "yahoo").Info("[Test] сообщение")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "[Test] сообщение", entry["msg"])
	assert.Equal(t, "yahoo", entry["provider"])
	assert.Contains(t, entry, "time")
}
