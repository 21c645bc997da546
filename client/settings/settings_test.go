package settings

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout())
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	data := `
server = "ws://chat.example.com/realtime/v1/websocket"
storage = "https://chat.example.com"
timeout = "3s"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, configFile), []byte(data), 0o600))

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "ws://chat.example.com/realtime/v1/websocket", cfg.Server)
	assert.Equal(t, "https://chat.example.com", cfg.Storage)
	assert.Equal(t, 3*time.Second, cfg.RequestTimeout())
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadConfigInvalid(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, configFile), []byte(`timeout = "soon"`), 0o600))

	_, err := LoadConfig(dir)
	assert.Error(t, err)
}

func TestDirFromEnv(t *testing.T) {
	t.Setenv("NCHAT_HOME", "/tmp/nchat-home")
	dir, err := Dir()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/nchat-home", dir)
	assert.Equal(t, "/tmp/nchat-home/client.log", LogPath(dir))
}

func TestPrefsRoundTrip(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "nested"))

	p, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, Prefs{Theme: ThemeGreen}, p)

	want := Prefs{Notifications: false, Sound: true, Timestamps: false, Theme: ThemeBlue}
	require.NoError(t, store.Save(want))
	assert.Equal(t, want, store.Current())

	fresh := NewStore(filepath.Dir(store.Path()))
	got, err := fresh.Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestPrefsThemeValidation(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	assert.Error(t, store.Save(Prefs{Theme: "purple"}))

	require.NoError(t, os.WriteFile(store.Path(), []byte("theme = \"purple\"\nsound = true\n"), 0o600))
	p, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, Prefs{Sound: true, Theme: ThemeGreen}, p)
}

func TestPrefsWatch(t *testing.T) {
	store := NewStore(t.TempDir())
	_, err := store.Load()
	require.NoError(t, err)

	changes := make(chan Prefs, 4)
	w, err := store.Watch(func(p Prefs) { changes <- p })
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(store.Path(), []byte("theme = \"red\"\n"), 0o600))

	select {
	case p := <-changes:
		assert.Equal(t, ThemeRed, p.Theme)
	case <-time.After(3 * time.Second):
		t.Fatal("no reload after external edit")
	}
	assert.Equal(t, ThemeRed, store.Current().Theme)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
}
