package frame

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchDirSource serves stills from a drop directory fed by an external
// frame grabber (e.g. motion or fswebcam writing JPEGs). An fsnotify
// watcher tracks whichever file was written most recently; Still reads
// that file.
type WatchDirSource struct {
	Dir string

	mu      sync.Mutex
	latest  string
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewWatchDirSource returns a source reading frames dropped into dir.
func NewWatchDirSource(dir string) *WatchDirSource {
	return &WatchDirSource{Dir: dir}
}

// Open starts the directory watcher and seeds the latest frame from any
// JPEG already present.
func (s *WatchDirSource) Open(ctx context.Context) error {
	info, err := os.Stat(s.Dir)
	if err != nil {
		return fmt.Errorf("camera unavailable: frame directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("camera unavailable: %s is not a directory", s.Dir)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("starting frame watcher: %w", err)
	}
	if err := watcher.Add(s.Dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watching frame directory: %w", err)
	}

	s.mu.Lock()
	s.latest = s.newestExisting()
	s.watcher = watcher
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.watch(watcher, s.done)
	return nil
}

// Still reads the most recently dropped JPEG and applies filter.
func (s *WatchDirSource) Still(filter Filter) (*Frame, error) {
	s.mu.Lock()
	path := s.latest
	s.mu.Unlock()
	if path == "" {
		return nil, ErrNoFrame
	}

	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return nil, ErrNoFrame
	}
	filtered, err := filter.ApplyJPEG(data)
	if err != nil {
		return nil, err
	}
	return &Frame{Data: filtered, Filter: filter, TakenAt: time.Now()}, nil
}

// Close stops the watcher.
func (s *WatchDirSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher != nil {
		close(s.done)
		err := s.watcher.Close()
		s.watcher = nil
		return err
	}
	return nil
}

func (s *WatchDirSource) watch(watcher *fsnotify.Watcher, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if !isJPEG(ev.Name) {
				continue
			}
			s.mu.Lock()
			s.latest = ev.Name
			s.mu.Unlock()
		case _, ok := <-watcher.Errors:
			if !ok {
				return
			}
			// Watch errors are transient here; the next Still simply
			// serves the previous frame.
		}
	}
}

// newestExisting returns the most recently modified JPEG in the
// directory, or "" when none exists. Caller holds s.mu.
func (s *WatchDirSource) newestExisting() string {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return ""
	}
	var newest string
	var newestMod time.Time
	for _, e := range entries {
		if e.IsDir() || !isJPEG(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest = filepath.Join(s.Dir, e.Name())
			newestMod = info.ModTime()
		}
	}
	return newest
}

func isJPEG(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".jpg" || ext == ".jpeg"
}
