package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes the CLI against the SQLite file at dbPath and returns stdout.
func run(t *testing.T, dbPath string, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer

	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append(args, "--database-url", dbPath, "--log-level", "error"))

	err := cmd.Execute()
	return stdout.String(), err
}

// isolate keeps a developer's config.yaml, .env or environment out of the test.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	for _, name := range []string{"DATABASE_URL", "LOG_LEVEL", "JWT_SECRET", "SECRET_KEY", "PORT"} {
		t.Setenv(name, "")
	}
	return filepath.Join(dir, "data", "mealtrack.db")
}

func TestUserAdd(t *testing.T) {
	db := isolate(t)

	out, err := run(t, db, "user", "add", "--last-name", "Scott", "--birthdate", "1988-12-26")
	require.NoError(t, err)
	assert.Equal(t, "Created user 1: Scott (birthdate 1988-12-26)\n", out)
}

func TestUserAdd_IsIdempotent(t *testing.T) {
	db := isolate(t)

	_, err := run(t, db, "user", "add", "--last-name", "Scott", "--birthdate", "1988-12-26")
	require.NoError(t, err)

	// Same person, different spelling of both fields.
	out, err := run(t, db, "user", "add", "--last-name", "scott", "--birthdate", "12/26/1988")
	require.NoError(t, err)
	assert.Contains(t, out, "already exists with id 1")
}

func TestUserAdd_Validation(t *testing.T) {
	db := isolate(t)

	_, err := run(t, db, "user", "add", "--last-name", "Scott", "--birthdate", "not a date")
	assert.ErrorContains(t, err, "Invalid birthdate format")

	_, err = run(t, db, "user", "add", "--last-name", "Scott")
	assert.ErrorContains(t, err, "birthdate")
}

func TestUserFind(t *testing.T) {
	db := isolate(t)
	for _, args := range [][]string{
		{"--last-name", "Scott", "--birthdate", "1988-12-26"},
		{"--last-name", "SCOTT", "--birthdate", "1970-01-01"},
		{"--last-name", "Patel", "--birthdate", "1990-03-01"},
	} {
		_, err := run(t, db, append([]string{"user", "add"}, args...)...)
		require.NoError(t, err)
	}

	out, err := run(t, db, "user", "find", "--last-name", "scott")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "id=1 last_name=Scott birthdate=1988-12-26"), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "id=2 last_name=SCOTT birthdate=1970-01-01"), lines[1])
}

func TestUserFind_NoMatch(t *testing.T) {
	db := isolate(t)

	out, err := run(t, db, "user", "find", "--last-name", "Nobody")
	require.NoError(t, err)
	assert.Equal(t, "No users found with last name \"Nobody\"\n", out)
}

func TestMigrate(t *testing.T) {
	db := isolate(t)

	out, err := run(t, db, "migrate")
	require.NoError(t, err)
	assert.Equal(t, "Database schema is up to date.\n", out)
	assert.FileExists(t, db)

	// Running it again is harmless.
	_, err = run(t, db, "migrate")
	assert.NoError(t, err)
}

func TestServe_RejectsMissingSecret(t *testing.T) {
	db := isolate(t)

	_, err := run(t, db, "serve")
	assert.ErrorContains(t, err, "jwt_secret")
}
