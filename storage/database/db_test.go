package database

import (
	"io/fs"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Marwebofficial/studio-sub000/core"
	appfs "github.com/Marwebofficial/studio-sub000/fs"
)

func TestURL(t *testing.T) {
	conf := &core.Config{Database: core.DatabaseConfig{
		Host:          "db",
		Port:          5433,
		User:          "studio",
		Password:      "p@ss",
		AdminUser:     "postgres",
		AdminPassword: "root",
	}}

	u, err := url.Parse(URL("studio", false, conf))
	require.NoError(t, err)
	assert.Equal(t, "postgres", u.Scheme)
	assert.Equal(t, "db:5433", u.Host)
	assert.Equal(t, "/studio", u.Path)
	assert.Equal(t, "studio", u.User.Username())
	pwd, _ := u.User.Password()
	assert.Equal(t, "p@ss", pwd)
	assert.Equal(t, "require", u.Query().Get("sslmode"))
	assert.Equal(t, "utc", u.Query().Get("timezone"))

	conf.Database.DisableTLS = true
	u, err = url.Parse(URL("postgres", true, conf))
	require.NoError(t, err)
	assert.Equal(t, "postgres", u.User.Username())
	assert.Equal(t, "disable", u.Query().Get("sslmode"))
}

func TestMigrationsEmbedded(t *testing.T) {
	files, err := fs.Glob(appfs.FS, migrationsDir+"/*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, f := range files {
		data, err := fs.ReadFile(appfs.FS, f)
		require.NoError(t, err)
		assert.True(t, strings.Contains(string(data), "-- +goose Up"), f)
		assert.True(t, strings.Contains(string(data), "-- +goose Down"), f)
	}
}
