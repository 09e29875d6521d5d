package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMigrations(t *testing.T) {
	migrations, err := loadMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)

	for i, m := range migrations {
		assert.Equal(t, i+1, m.version, "migrations must be numbered without gaps")
		assert.NotEmpty(t, m.sql)
	}

	assert.Equal(t, "init", migrations[0].name)
}
