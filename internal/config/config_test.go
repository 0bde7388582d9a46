package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lifelog/internal/contacts"
)

const sampleConfig = `
me:
  name: Me Myself
  phones: ["+1 555 000 0000"]
  emails: [me@example.com]
index:
  policy: blacklist
  unindexable: [notes]
conflict: keep-both
aliases:
  "+15551234567": Joe
timezone: UTC
drivers_dir: drivers
parallelism: 2
sources:
  - name: phone
    format: voice
    path: exports/takeout.zip#Voice/calls.jsonl
  - format: google-csv
    path: /abs/contacts.csv
`

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadResolvesPaths(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("LIFELOG_DATA_DIR", filepath.Join(dir, "data"))
	path := writeConfig(t, dir, sampleConfig)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "Me Myself", cfg.Me.Name)
	assert.Equal(t, "Joe", cfg.Aliases["+15551234567"])
	assert.Equal(t, 2, cfg.Parallelism)
	assert.Equal(t, filepath.Join(dir, "drivers"), cfg.DriversDir)
	assert.Equal(t, filepath.Join(dir, "data", DatabaseName), cfg.Database)

	require.Len(t, cfg.Sources, 2)
	assert.Equal(t, "phone", cfg.Sources[0].Name)
	assert.Equal(t, filepath.Join(dir, "exports", "takeout.zip")+"#Voice/calls.jsonl", cfg.Sources[0].Path)
	assert.Equal(t, "/abs/contacts.csv", cfg.Sources[1].Path)
}

func TestLoadMissingDefaultFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("LIFELOG_CONFIG_DIR", filepath.Join(dir, "conf"))
	t.Setenv("LIFELOG_DATA_DIR", filepath.Join(dir, "data"))

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "conf", "drivers"), cfg.DriversDir)
	assert.Equal(t, filepath.Join(dir, "data", DatabaseName), cfg.Database)
	assert.NotNil(t, cfg.Aliases)
	assert.Empty(t, cfg.Sources)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("me:\n  name: x\ncolour: blue\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "colour")
}

func TestParseEmpty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.NotNil(t, cfg.Aliases)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad conflict", "conflict: newest\n", "conflict"},
		{"bad index policy", "index:\n  policy: some\n", "index.policy"},
		{"bad email", "me:\n  emails: [not-an-email]\n", "me.emails[0]"},
		{"empty phone", "me:\n  phones: ['']\n", "me.phones[0]"},
		{"source without format", "sources:\n  - path: x.jsonl\n", "sources[0].format"},
		{"parallelism too high", "parallelism: 1000\n", "parallelism"},
		{"bad timezone", "timezone: Mars/Olympus\n", "timezone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.body))
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestBookOptions(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	opts, err := cfg.BookOptions()
	require.NoError(t, err)
	b, err := contacts.NewBook(opts...)
	require.NoError(t, err)

	assert.Equal(t, contacts.IndexBlacklist, b.IndexPolicy())
	assert.Equal(t, contacts.KeepBoth, b.ConflictPolicy())
	assert.False(t, b.Indexed(contacts.NotesField))
	assert.True(t, b.Indexed(contacts.AddressesField))
}

func TestMeContact(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	me, err := cfg.MeContact()
	require.NoError(t, err)
	require.NotNil(t, me)
	assert.True(t, me.IsMe())
	assert.Equal(t, "Me Myself", me.Name())
	assert.Equal(t, "+15550000000", me.Phone())
	assert.Equal(t, "me@example.com", me.Email())

	empty := &Config{}
	me, err = empty.MeContact()
	require.NoError(t, err)
	assert.Nil(t, me)
}

func TestLocation(t *testing.T) {
	cfg := &Config{Timezone: "UTC"}
	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())

	cfg.Timezone = ""
	loc, err = cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Local", loc.String())
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	path := filepath.Join(dir, "nested", FileName)
	require.NoError(t, cfg.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	again, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestConfigDirOverrides(t *testing.T) {
	t.Setenv("LIFELOG_CONFIG_DIR", "/tmp/conf")
	dir, err := ConfigDir()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/conf", dir)

	t.Setenv("LIFELOG_CONFIG_DIR", "")
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	dir, err = ConfigDir()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/xdg/lifelog", dir)
}

func TestYAMLPath(t *testing.T) {
	assert.Equal(t, "drivers_dir", yamlPath("Config.DriversDir"))
	assert.Equal(t, "sources[1].path", yamlPath("Config.Sources[1].Path"))
}
