package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/danmuck/clubsite/internal/schema"
	"github.com/danmuck/clubsite/internal/site"
)

const (
	Members  = "members"
	Events   = "events"
	Timeline = "timeline"
)

// NotFoundError reports a dataset that is unknown or missing on disk.
type NotFoundError struct {
	Dataset string
	Path    string
}

func (e *NotFoundError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("Dataset not found: %s", e.Dataset)
	}
	return fmt.Sprintf("Dataset not found: %s (%s)", e.Dataset, e.Path)
}

// ParseError reports a dataset file that is not valid JSON.
type ParseError struct {
	Dataset string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("Invalid JSON in %s dataset: %v", e.Dataset, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

type decoder func([]byte) (any, error)

var decoders = map[string]decoder{
	Members:  func(b []byte) (any, error) { return schema.Members(b) },
	Events:   func(b []byte) (any, error) { return schema.Events(b) },
	Timeline: func(b []byte) (any, error) { return schema.Timeline(b) },
}

// Names returns the datasets in canonical order.
func Names() []string {
	return []string{Members, Events, Timeline}
}

// Loader reads datasets from a directory on every call. It holds no state
// besides the directory and is safe for concurrent use.
type Loader struct {
	dir string
}

// NewLoader returns a loader rooted at dir.
func NewLoader(dir string) *Loader {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		dir = "data"
	}
	return &Loader{dir: dir}
}

// Dir returns the data directory.
func (l *Loader) Dir() string {
	return l.dir
}

// Path returns the file backing a dataset.
func (l *Loader) Path(name string) string {
	return filepath.Join(l.dir, name+".json")
}

// Load reads, parses and validates the named dataset.
func (l *Loader) Load(ctx context.Context, name string) (any, error) {
	decode, ok := decoders[name]
	if !ok {
		return nil, &NotFoundError{Dataset: name}
	}
	data, err := l.read(ctx, name)
	if err != nil {
		return nil, err
	}
	return decode(data)
}

// Members loads the member roster.
func (l *Loader) Members(ctx context.Context) ([]site.Member, error) {
	data, err := l.read(ctx, Members)
	if err != nil {
		return nil, err
	}
	return schema.Members(data)
}

// Events loads the event list.
func (l *Loader) Events(ctx context.Context) ([]site.ClubEvent, error) {
	data, err := l.read(ctx, Events)
	if err != nil {
		return nil, err
	}
	return schema.Events(data)
}

// Timeline loads the club timeline.
func (l *Loader) Timeline(ctx context.Context) ([]site.TimelineItem, error) {
	data, err := l.read(ctx, Timeline)
	if err != nil {
		return nil, err
	}
	return schema.Timeline(data)
}

func (l *Loader) read(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := l.Path(name)
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &NotFoundError{Dataset: name, Path: p}
		}
		return nil, fmt.Errorf("read %s dataset: %w", name, err)
	}
	if !json.Valid(data) {
		var probe any
		return nil, &ParseError{Dataset: name, Err: json.Unmarshal(data, &probe)}
	}
	return data, nil
}
