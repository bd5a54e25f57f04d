package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"escrowline/internal/config"
)

func TestNewParsesLevel(t *testing.T) {
	log := New(config.LogConfig{Level: "warn"}, false)
	assert.Equal(t, zerolog.WarnLevel, log.GetLevel())

	log = New(config.LogConfig{Level: "nonsense"}, false)
	assert.Equal(t, zerolog.InfoLevel, log.GetLevel())
}

func TestNewWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "escrowline.log")
	log := New(config.LogConfig{Level: "info", File: path}, false)
	log.Info().Str("contract_id", "c1").Msg("accepted")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"contract_id":"c1"`)
	assert.Contains(t, string(data), `"service":"escrowline"`)
}
