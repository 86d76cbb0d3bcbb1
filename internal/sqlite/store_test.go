package sqlite_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/petrovskifilip/agri-management-system/internal/sqlite"
	"github.com/petrovskifilip/agri-management-system/internal/store"
	"github.com/petrovskifilip/agri-management-system/internal/store/storetest"
)

func TestSQLiteStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := sqlite.Open(filepath.Join(t.TempDir(), "agriflow.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestSQLiteStore_ReopenMigratesCleanly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agriflow.db")
	s, err := sqlite.Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = sqlite.Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}
