package storage

import (
	"io"
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/channel-mirror/migrations"
)

func TestEmbeddedMigrations(t *testing.T) {
	source, err := iofs.New(migrations.Postgres, "postgres")
	require.NoError(t, err, "embedded migrations must load without touching the filesystem")
	defer source.Close()

	t.Run("first migration creates the channel registry", func(t *testing.T) {
		version, err := source.First()
		require.NoError(t, err)
		assert.Equal(t, uint(1), version)

		up, _, err := source.ReadUp(version)
		require.NoError(t, err)
		defer up.Close()

		body, err := io.ReadAll(up)
		require.NoError(t, err)
		assert.Contains(t, string(body), "monitored_channels")
	})

	t.Run("every migration has a down counterpart", func(t *testing.T) {
		version, err := source.First()
		require.NoError(t, err)

		for {
			down, _, err := source.ReadDown(version)
			require.NoError(t, err, "migration %d has no rollback", version)
			down.Close()

			next, err := source.Next(version)
			if err != nil {
				break
			}
			version = next
		}
	})
}
