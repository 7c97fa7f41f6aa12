package retrieval

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemory(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestInsert_UpsertsByContent(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	meta := Metadata{Filename: "config.py", RunID: "run-1"}

	id1, err := s.Insert(ctx, "SCREEN_WIDTH = 800", meta)
	require.NoError(t, err)
	id2, err := s.Insert(ctx, "SCREEN_WIDTH = 800", meta)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
	assert.Equal(t, EntryID("run-1", "config.py", "SCREEN_WIDTH = 800"), id1)

	got, err := s.Query(ctx, "screen width", "run-1", 5)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestQuery_PartitionedByRunAndRanked(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	_, err := s.Insert(ctx, "def draw_player(self): arcade.draw_circle_filled(...)", Metadata{Filename: "player.py", RunID: "a"})
	require.NoError(t, err)
	_, err = s.Insert(ctx, "SCREEN_WIDTH = 800\nSCREEN_HEIGHT = 600", Metadata{Filename: "config.py", RunID: "a"})
	require.NoError(t, err)
	_, err = s.Insert(ctx, "SCREEN_HEIGHT = 1", Metadata{Filename: "config.py", RunID: "b"})
	require.NoError(t, err)

	got, err := s.Query(ctx, "'SCREEN_HEIGHT' not found in local module 'config'", "a", 3)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "config.py", got[0].Filename)
	assert.Equal(t, "a", got[0].RunID)

	got, err = s.Query(ctx, "draw player screen", "a", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "player.py", got[0].Filename)
}

func TestDeleteByMetadata_IdenticalContentInTwoFiles(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	const body = "import arcade\n"

	idA, err := s.Insert(ctx, body, Metadata{Filename: "a.py", RunID: "run-1"})
	require.NoError(t, err)
	idB, err := s.Insert(ctx, body, Metadata{Filename: "b.py", RunID: "run-1"})
	require.NoError(t, err)
	assert.NotEqual(t, idA, idB)

	n, err := s.DeleteByMetadata(ctx, Metadata{Filename: "a.py", RunID: "run-1"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := s.Query(ctx, "arcade", "run-1", 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b.py", got[0].Filename)
}

func TestDeleteByMetadata(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	for _, m := range []Metadata{{"main.py", "a"}, {"utils.py", "a"}, {"main.py", "b"}} {
		_, err := s.Insert(ctx, "x = 1 # "+m.Filename+m.RunID, m)
		require.NoError(t, err)
	}

	n, err := s.DeleteByMetadata(ctx, Metadata{})
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = s.DeleteByMetadata(ctx, Metadata{Filename: "main.py", RunID: "a"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := s.Query(ctx, "x", "b", 5)
	require.NoError(t, err)
	assert.Empty(t, got, "single-letter terms are ignored")

	got, err = s.Query(ctx, "main.py", "b", 5)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestOpenSQLite_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "retrieval.db")
	s, err := OpenSQLite(path)
	require.NoError(t, err)
	_, err = s.Insert(context.Background(), "hello world", Metadata{Filename: "a.py", RunID: "r"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Query(context.Background(), "hello", "r", 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestTerms(t *testing.T) {
	terms := Terms("'SCREEN_HEIGHT' not found, x")
	for _, want := range []string{"screen_height", "screen", "height", "not", "found"} {
		assert.Contains(t, terms, want)
	}
	assert.NotContains(t, terms, "x")
}
