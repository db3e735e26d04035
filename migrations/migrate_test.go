package migrations

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSource_EveryVersionHasUpAndDown(t *testing.T) {
	src, err := Source()
	require.NoError(t, err)
	defer src.Close()

	version, err := src.First()
	require.NoError(t, err)
	for {
		up, _, err := src.ReadUp(version)
		require.NoError(t, err, "version %d has no up migration", version)
		body, err := io.ReadAll(up)
		up.Close()
		require.NoError(t, err)
		assert.NotEmpty(t, body)

		down, _, err := src.ReadDown(version)
		require.NoError(t, err, "version %d has no down migration", version)
		down.Close()

		version, err = src.Next(version)
		if err != nil {
			require.ErrorIs(t, err, os.ErrNotExist)
			break
		}
	}
}

func TestInitSchema_CreatesDirectKeyIndex(t *testing.T) {
	body, err := migrationFiles.ReadFile("sql/000001_init_schema.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(body), "CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_direct_key")
}
