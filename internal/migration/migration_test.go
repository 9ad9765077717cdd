package migration

import (
	"errors"
	"io"
	"io/fs"
	"testing"

	"github.com/smallbiznis/promosync/internal/testutil"
	"github.com/smallbiznis/promosync/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateAutoMigratesNonPostgres(t *testing.T) {
	conn := testutil.OpenDB(t)

	require.NoError(t, Migrate(conn, db.TypeSQLite))
	require.NoError(t, Migrate(conn, db.TypeSQLite))

	for _, table := range []string{
		"discounts",
		"live_discounts",
		"discount_targets",
		"discount_products",
		"discount_variants",
		"discount_codes",
		"catalog_products",
		"catalog_collections",
		"shop_tiers",
		"shop_sessions",
		"webhook_events",
		"discount_sync_marks",
	} {
		assert.True(t, conn.Migrator().HasTable(table), table)
	}
}

func TestMigrateRequiresConnection(t *testing.T) {
	require.Error(t, Migrate(nil, db.TypeSQLite))
	require.Error(t, RunMigrations(nil))
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	src, err := Source()
	require.NoError(t, err)

	var versions []uint
	version, err := src.First()
	require.NoError(t, err)
	for {
		versions = append(versions, version)

		up, _, err := src.ReadUp(version)
		require.NoError(t, err, "up %d", version)
		body, err := io.ReadAll(up)
		require.NoError(t, err)
		_ = up.Close()
		assert.NotEmpty(t, body)

		down, _, err := src.ReadDown(version)
		require.NoError(t, err, "down %d", version)
		_ = down.Close()

		version, err = src.Next(version)
		if errors.Is(err, fs.ErrNotExist) {
			break
		}
		require.NoError(t, err)
	}
	assert.Equal(t, []uint{1, 2, 3}, versions)
}
