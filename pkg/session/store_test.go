package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateClientID(t *testing.T) {
	require.NoError(t, ValidateClientID(""))
	require.NoError(t, ValidateClientID("primary"))
	require.NoError(t, ValidateClientID("client_2-a"))
	require.Error(t, ValidateClientID("has space"))
	require.Error(t, ValidateClientID("../escape"))
	require.Error(t, ValidateClientID("dot.dot"))
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir())

	_, err := s.Restore(ctx, "primary")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Save(ctx, "primary", []byte("blob")))
	got, err := s.Restore(ctx, "primary")
	require.NoError(t, err)
	require.Equal(t, []byte("blob"), got)

	require.NoError(t, s.Clear(ctx, "primary"))
	_, err = s.Restore(ctx, "primary")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreEmptyClientID(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	s := NewFileStore(base)

	require.NoError(t, s.Save(ctx, "", []byte("x")))
	_, err := os.Stat(filepath.Join(base, "session.bin"))
	require.NoError(t, err)
}

func TestFileStoreRejectsBadID(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir())
	require.Error(t, s.Save(ctx, "../../etc", []byte("x")))
}

func TestFileStoreClearMissingIsNoop(t *testing.T) {
	s := NewFileStore(t.TempDir())
	require.NoError(t, s.Clear(context.Background(), "absent"))
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.Restore(ctx, "a")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.Save(ctx, "a", []byte("blob")))
	got, err := m.Restore(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, []byte("blob"), got)

	require.NoError(t, m.Clear(ctx, "a"))
	_, err = m.Restore(ctx, "a")
	require.ErrorIs(t, err, ErrNotFound)
}
