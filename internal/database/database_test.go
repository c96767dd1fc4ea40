package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect_CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reviews.db")

	db, err := Connect(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	assert.Equal(t, 1, db.Stats().MaxOpenConnections)
	require.NoError(t, db.Ping())
	assert.FileExists(t, path)
}

func TestConnect_BadPath(t *testing.T) {
	_, err := Connect(filepath.Join(t.TempDir(), "missing", "dir", "x.db"))
	assert.Error(t, err)
}
