package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnString(t *testing.T) {
	assert.Equal(t,
		"postgres://postgres@localhost:5432/notes",
		ConnString(NewDBPoolParams{DBHost: "localhost", DBPort: "5432", DBName: "notes"}),
	)
	assert.Equal(t,
		"postgres://notes:s3cr%40t@db:6543/notes",
		ConnString(NewDBPoolParams{DBHost: "db", DBPort: "6543", DBName: "notes", DBUser: "notes", DBPassword: "s3cr@t"}),
	)
}

func TestEmbeddedMigrations(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	assert.NoError(t, err)
	assert.Len(t, entries, 2)
}
