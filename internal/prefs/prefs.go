package prefs

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/castlelab/studysync/internal/state"
)

type Preferences struct {
	Theme   string `json:"theme"`
	Palette string `json:"palette"`
}

type Logger interface {
	Printf(format string, args ...any)
}

type FileStore struct {
	path   string
	logger Logger

	mu   sync.Mutex
	last Preferences
	has  bool
}

func NewFileStore(path string) (*FileStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("prefs path is required")
	}
	return &FileStore{path: path}, nil
}

func (s *FileStore) SetLogger(logger Logger) {
	s.logger = logger
}

func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Load() (Preferences, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Preferences{}, nil
		}
		return Preferences{}, err
	}
	var prefs Preferences
	if err := json.Unmarshal(data, &prefs); err != nil {
		return Preferences{}, err
	}
	return prefs, nil
}

func (s *FileStore) Save(prefs Preferences) error {
	data, err := json.Marshal(prefs)
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return err
	}
	s.mu.Lock()
	s.last = prefs
	s.has = true
	s.mu.Unlock()
	return nil
}

// BindStore mirrors theme changes from the store into the prefs file.
// The handler is idempotent: identical preferences are not rewritten.
func (s *FileStore) BindStore(store *state.Store) func() {
	return store.Subscribe(func(app *state.AppState) {
		prefs := Preferences{Theme: app.UI.Theme, Palette: app.UI.Palette}
		s.mu.Lock()
		unchanged := s.has && s.last == prefs
		s.mu.Unlock()
		if unchanged {
			return
		}
		if err := s.Save(prefs); err != nil {
			s.logf("prefs save failed: %v", err)
		}
	})
}

func (s *FileStore) logf(format string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}
