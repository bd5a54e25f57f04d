package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"escrowline/internal/config"
)

func TestOpenDefaultsWithoutConfigFile(t *testing.T) {
	ws := t.TempDir()
	a, err := Open(context.Background(), Options{Workspace: ws})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	assert.Equal(t, 1000, a.Config.FeeBps())
	assert.Nil(t, a.Engine.Attachments)
	assert.Nil(t, a.Engine.Metrics)
	require.NoError(t, a.DB.PingContext(context.Background()))
}

func TestOpenWiresFileAttachmentsInStateDir(t *testing.T) {
	ws := t.TempDir()
	yml := "attachments:\n  driver: file\nlog:\n  level: debug\n  file: escrowline.log\n"
	require.NoError(t, os.WriteFile(filepath.Join(ws, "escrowline.yml"), []byte(yml), 0o644))

	ctx := context.Background()
	a, err := Open(ctx, Options{Workspace: ws})
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	assert.Equal(t, filepath.Join(ws, ".escrowline", "attachments"), a.Config.Attachments.Dir)
	assert.Equal(t, filepath.Join(ws, ".escrowline", "escrowline.log"), a.Config.Log.File)
	require.NotNil(t, a.Engine.Attachments)

	ref, err := a.Engine.Attachments.Put(ctx, []byte("deliverable"))
	require.NoError(t, err)
	ok, err := a.Engine.Attachments.Exists(ctx, ref)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestResolvePathsKeepsAbsolutePaths(t *testing.T) {
	cfg := config.Default()
	cfg.Attachments.Driver = "file"
	cfg.Attachments.Dir = "/srv/files"
	cfg.Log.File = "/var/log/escrowline.log"
	resolvePaths("/ws", cfg)
	assert.Equal(t, "/srv/files", cfg.Attachments.Dir)
	assert.Equal(t, "/var/log/escrowline.log", cfg.Log.File)

	cfg.Attachments.Dir = "uploads"
	resolvePaths("/ws", cfg)
	assert.Equal(t, filepath.Join("/ws", "uploads"), cfg.Attachments.Dir)
}

func TestCloseIsNilSafe(t *testing.T) {
	var c *Context
	assert.NoError(t, c.Close())
}
