package attachments

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"escrowline/internal/config"
)

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	ref, err := store.Put(ctx, []byte("wireframes v2"))
	require.NoError(t, err)
	assert.Regexp(t, `^sha256:[0-9a-f]{64}$`, ref)

	again, err := store.Put(ctx, []byte("wireframes v2"))
	require.NoError(t, err)
	assert.Equal(t, ref, again)

	ok, err := store.Exists(ctx, ref)
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := store.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "wireframes v2", string(data))
}

func TestFileStoreMissingAndMalformedRefs(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	missing, _ := contentRef([]byte("never stored"))
	ok, err := store.Exists(ctx, missing)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.Get(ctx, missing)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Exists(ctx, "md5:abc")
	assert.Error(t, err)
}

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, config.AttachmentsConfig{Driver: "none"})
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = Open(ctx, config.AttachmentsConfig{Driver: "file", Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	_, err = Open(ctx, config.AttachmentsConfig{Driver: "gopher"})
	assert.Error(t, err)
}
