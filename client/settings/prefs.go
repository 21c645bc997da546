package settings

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Themes
const (
	ThemeGreen = "green"
	ThemeBlue  = "blue"
	ThemeRed   = "red"
)

type Prefs struct {
	Notifications bool   `toml:"notifications"`
	Sound         bool   `toml:"sound"`
	Timestamps    bool   `toml:"timestamps"`
	Theme         string `toml:"theme"`
}

// DefaultPrefs has every toggle off; a key missing from the file reads as
// false.
func DefaultPrefs() Prefs {
	return Prefs{Theme: ThemeGreen}
}

func validTheme(theme string) bool {
	switch theme {
	case ThemeGreen, ThemeBlue, ThemeRed:
		return true
	}
	return false
}

// Store reads and writes dir/prefs.toml.
type Store struct {
	path string

	mu    sync.Mutex
	prefs Prefs
}

func NewStore(dir string) *Store {
	return &Store{path: filepath.Join(dir, prefsFile), prefs: DefaultPrefs()}
}

func (s *Store) Path() string { return s.path }

// Load reads the file over the defaults. Missing file means defaults; an
// unknown theme falls back to green.
func (s *Store) Load() (Prefs, error) {
	p := DefaultPrefs()
	if _, err := toml.DecodeFile(s.path, &p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return s.Current(), fmt.Errorf("prefs %s: %w", s.path, err)
	}
	if !validTheme(p.Theme) {
		p.Theme = ThemeGreen
	}

	s.mu.Lock()
	s.prefs = p
	s.mu.Unlock()
	return p, nil
}

func (s *Store) Current() Prefs {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prefs
}

// Save writes p through a temp file and rename.
func (s *Store) Save(p Prefs) error {
	if !validTheme(p.Theme) {
		return fmt.Errorf("unknown theme %q", p.Theme)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(p); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return err
	}

	s.mu.Lock()
	s.prefs = p
	s.mu.Unlock()
	return nil
}

// Watcher reloads prefs when the file changes on disk.
type Watcher struct {
	store    *Store
	watcher  *fsnotify.Watcher
	debounce time.Duration
	onChange func(Prefs)
	done     chan struct{}
	once     sync.Once
}

// Watch calls onChange with the reloaded prefs after every external edit.
// The directory is watched so editors that replace the file are seen.
func (s *Store) Watch(onChange func(Prefs)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		fw.Close()
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		store:    s,
		watcher:  fw,
		debounce: 100 * time.Millisecond,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-w.done:
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.store.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("prefs watcher")
		}
	}
}

func (w *Watcher) reload() {
	before := w.store.Current()
	p, err := w.store.Load()
	if err != nil {
		log.Warn().Err(err).Msg("reload prefs")
		return
	}
	if p == before {
		return
	}
	log.Info().Str("theme", p.Theme).Msg("prefs reloaded")
	select {
	case <-w.done:
	default:
		w.onChange(p)
	}
}

func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.watcher.Close()
	})
	return err
}
