// Package loader discovers descriptor files named <TypeName>.credentials.<ext>
// and registers them. A file that fails to decode, validate or register is
// skipped and logged; it never stops the rest of the load.
package loader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/status-im/credential-host/descriptor"
	"github.com/status-im/credential-host/descriptor/builtin"
	"github.com/status-im/credential-host/logging"
)

// Registrar accepts decoded descriptors
type Registrar interface {
	Register(d *descriptor.Descriptor) error
}

// Skipped records a file that was not registered
type Skipped struct {
	Path string
	Err  error
}

// Result summarizes one load pass
type Result struct {
	Registered []string
	Skipped    []Skipped
}

func (r *Result) merge(other Result) {
	r.Registered = append(r.Registered, other.Registered...)
	r.Skipped = append(r.Skipped, other.Skipped...)
}

// Loader registers descriptors from the embedded builtins and from directories.
// It remembers each file's modification time and only retries a file after it changes.
type Loader struct {
	registrar Registrar
	logger    logging.Logger
	mu        sync.Mutex
	seen      map[string]time.Time
}

type Option func(*Loader)

func WithLogger(logger logging.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

func New(registrar Registrar, opts ...Option) *Loader {
	l := &Loader{
		registrar: registrar,
		logger:    logging.NoopLogger{},
		seen:      make(map[string]time.Time),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// LoadBuiltin registers the descriptors compiled into the host
func (l *Loader) LoadBuiltin() (Result, error) {
	var res Result

	all, err := builtin.Descriptors()
	if err != nil {
		return res, err
	}

	for _, d := range all {
		if err := l.registrar.Register(d); err != nil {
			l.logger.Warn("Skipping builtin credential type", "name", d.Name, "error", err)
			res.Skipped = append(res.Skipped, Skipped{Path: "builtin:" + d.Name, Err: err})
			continue
		}
		res.Registered = append(res.Registered, d.Name)
	}

	return res, nil
}

// LoadFile decodes and registers one descriptor file
func (l *Loader) LoadFile(path string) (*descriptor.Descriptor, error) {
	format, ok := descriptor.FormatFromPath(path)
	if !ok {
		return nil, fmt.Errorf("%s: file name must match <TypeName>%s.{yaml,yml,json,toml}", path, descriptor.FileSuffix)
	}

	d, err := ReadFile(path, format)
	if err != nil {
		return nil, err
	}

	if fileType := descriptor.TypeNameFromPath(path); fileType != d.Name {
		l.logger.Warn("Descriptor name differs from file name", "path", path, "name", d.Name, "file_type", fileType)
	}

	if err := l.registrar.Register(d); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return d, nil
}

// ReadFile decodes a descriptor file without registering it
func ReadFile(path string, format descriptor.Format) (*descriptor.Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read descriptor: %w", err)
	}

	d, err := descriptor.Decode(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// LoadDir registers every new or changed descriptor file directly inside dir
func (l *Loader) LoadDir(dir string) (Result, error) {
	var res Result

	entries, err := os.ReadDir(dir)
	if err != nil {
		return res, fmt.Errorf("failed to read descriptor directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := descriptor.FormatFromPath(entry.Name()); !ok {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !l.markSeen(path, info.ModTime()) {
			continue
		}

		d, err := l.LoadFile(path)
		if err != nil {
			l.logger.Warn("Skipping credential descriptor", "path", path, "error", err)
			res.Skipped = append(res.Skipped, Skipped{Path: path, Err: err})
			continue
		}

		l.logger.Debug("Loaded credential descriptor", "path", path, "name", d.Name)
		res.Registered = append(res.Registered, d.Name)
	}

	return res, nil
}

// LoadDirs loads each directory in turn. Directories that do not exist are skipped.
func (l *Loader) LoadDirs(dirs []string) (Result, error) {
	var res Result

	for _, dir := range dirs {
		r, err := l.LoadDir(dir)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				l.logger.Debug("Descriptor directory does not exist", "dir", dir)
				continue
			}
			return res, err
		}
		res.merge(r)
	}

	return res, nil
}

// markSeen records modTime for path and reports whether the file is new or changed
func (l *Loader) markSeen(path string, modTime time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if prev, ok := l.seen[path]; ok && prev.Equal(modTime) {
		return false
	}
	l.seen[path] = modTime
	return true
}
