package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"":        LevelInfo,
		"warning": LevelWarn,
		" error ": LevelError,
		"fatal":   LevelFatal,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestLogrusLogger_ChildSharesLevel(t *testing.T) {
	base, hook := test.NewNullLogger()
	log := NewFromLogrus(base)

	child := log.WithField("component", "hub")
	child.SetLevel(LevelWarn)

	log.Info("dropped")
	child.Warn("kept")

	require.Len(t, hook.AllEntries(), 1)
	entry := hook.LastEntry()
	assert.Equal(t, "kept", entry.Message)
	assert.Equal(t, "hub", entry.Data["component"])
}

func TestLogrusLogger_JSONFormat(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "json"
	cfg.Fields = map[string]string{"service": "comments"}

	log := NewLogrusLogger(cfg)
	var buf bytes.Buffer
	log.SetOutput(&buf)

	log.WithFields(Fields{"connection_id": "ws-1"}).Info("registered")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "registered", line["message"])
	assert.Equal(t, "ws-1", line["connection_id"])
	assert.Equal(t, "comments", line["service"])
	assert.Equal(t, logrus.InfoLevel.String(), line["level"])
}
