package server

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"escrowline/internal/db"
	"escrowline/internal/domain"
	"escrowline/internal/migrate"
	"escrowline/internal/repo"
)

func TestAPIKeyTouchFailureIsLoggedNotFatal(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(ctx, conn))
	r := repo.Repo{DB: conn}

	plain, err := repo.GenerateAPIKey()
	require.NoError(t, err)
	require.NoError(t, r.InsertAPIKey(ctx, nil, domain.APIKey{ID: "k1", ActorID: "alice", KeyHash: repo.HashAPIKey(plain), CreatedAt: "2024-01-01T00:00:00Z"}))
	_, err = conn.ExecContext(ctx, `CREATE TRIGGER api_keys_frozen BEFORE UPDATE ON api_keys BEGIN SELECT RAISE(ABORT, 'api_keys is read only'); END`)
	require.NoError(t, err)

	var buf bytes.Buffer
	log := zerolog.New(&buf).Level(zerolog.DebugLevel)
	principal, err := authenticateAPIKey(ctx, r, plain, log)
	require.NoError(t, err)
	assert.Equal(t, "alice", principal.ActorID)
	assert.Equal(t, "api_key", principal.Source)
	assert.Contains(t, buf.String(), "touch api key failed")
	assert.Contains(t, buf.String(), `"key_id":"k1"`)

	_, err = authenticateAPIKey(ctx, r, "elk_unknown", log)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
