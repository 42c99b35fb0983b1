package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageRoundTrip(t *testing.T) {
	s, err := NewLocalStorage(LocalConfig{BasePath: t.TempDir()})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, "attachments/u1/cat.png", strings.NewReader("meow"), 4, "image/png"))

	obj, err := s.Read(ctx, "attachments/u1/cat.png")
	require.NoError(t, err)
	defer obj.Body.Close()
	body, err := io.ReadAll(obj.Body)
	require.NoError(t, err)
	assert.Equal(t, "meow", string(body))
	assert.Equal(t, int64(4), obj.Size)
	assert.Equal(t, "image/png", obj.ContentType)

	require.NoError(t, s.Delete(ctx, "attachments/u1/cat.png"))
	_, err = s.Read(ctx, "attachments/u1/cat.png")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, s.Delete(ctx, "attachments/u1/cat.png"))
}

func TestLocalStorageStaysInsideBasePath(t *testing.T) {
	base := t.TempDir()
	s, err := NewLocalStorage(LocalConfig{BasePath: base})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, "../../escape.txt", strings.NewReader("x"), 1, ""))
	obj, err := s.Read(ctx, "escape.txt")
	require.NoError(t, err, "traversal is clamped under the base path")
	obj.Body.Close()

	_, err = s.Read(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)
}
