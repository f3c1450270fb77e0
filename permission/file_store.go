package permission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// FileStore serves a PolicySet parsed from a YAML file.
type FileStore struct {
	path    string
	current atomic.Pointer[PolicySet]
	logger  *slog.Logger

	debounce time.Duration
	reloads  atomic.Int64
}

// NewFileStore reads path once and fails when it cannot be parsed.
func NewFileStore(path string, logger *slog.Logger) (*FileStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &FileStore{path: filepath.Clean(path), logger: logger, debounce: 100 * time.Millisecond}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Load returns the most recently published set.
func (s *FileStore) Load(context.Context) (*PolicySet, error) {
	set := s.current.Load()
	if set == nil {
		return nil, errors.New("policy file not loaded")
	}
	return set, nil
}

// Reloads reports how many sets have been published.
func (s *FileStore) Reloads() int64 {
	return s.reloads.Load()
}

// Reload parses the file and publishes it when valid.
func (s *FileStore) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read policy file: %w", err)
	}
	set, err := ParseYAML(data)
	if err != nil {
		return err
	}
	s.current.Store(set)
	s.reloads.Add(1)
	return nil
}

// ParseYAML decodes and validates a policy document.
func ParseYAML(data []byte) (*PolicySet, error) {
	var set PolicySet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("parse policy yaml: %w", err)
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return &set, nil
}

// Watch reloads the file on change until ctx is done. It watches the parent
// directory so editors that replace the file by rename are picked up.
func (s *FileStore) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return err
	}

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(s.debounce)
			} else {
				timer.Reset(s.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			if err := s.Reload(); err != nil {
				s.logger.Warn("policy reload failed; keeping previous set", "path", s.path, "error", err)
				continue
			}
			s.logger.Info("policy set reloaded", "path", s.path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("policy watcher error", "error", err)
		}
	}
}
