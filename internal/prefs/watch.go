package prefs

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/castlelab/studysync/internal/state"
)

// Watch re-dispatches theme preferences into the store when the prefs file is
// rewritten by another process. Blocks until ctx is done.
func (s *FileStore) Watch(ctx context.Context, store *state.Store) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return err
	}

	target, err := filepath.Abs(s.path)
	if err != nil {
		target = s.path
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Rename) {
				continue
			}
			name, absErr := filepath.Abs(event.Name)
			if absErr != nil {
				name = event.Name
			}
			if name != target {
				continue
			}
			s.applyFile(store)
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logf("prefs watch error: %v", watchErr)
		}
	}
}

func (s *FileStore) applyFile(store *state.Store) {
	prefs, err := s.Load()
	if err != nil {
		s.logf("prefs reload failed: %v", err)
		return
	}
	if prefs.Theme == "" && prefs.Palette == "" {
		return
	}
	s.mu.Lock()
	unchanged := s.has && s.last == prefs
	s.last = prefs
	s.has = true
	s.mu.Unlock()
	if unchanged {
		return
	}
	payload := map[string]any{}
	if prefs.Theme != "" {
		payload["theme"] = prefs.Theme
	}
	if prefs.Palette != "" {
		payload["palette"] = prefs.Palette
	}
	store.Dispatch(state.Action{Type: state.ActionUISetTheme, Payload: payload})
}
