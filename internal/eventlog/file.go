package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	lj "gopkg.in/natefinch/lumberjack.v2"

	"github.com/KarmveerSingh18/prototype-4/internal/models"
)

// Default rotation settings for the JSON-lines sink.
const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 3
	DefaultMaxAgeDays = 7
)

// Rotation follows lumberjack semantics. Zero values take the defaults.
type Rotation struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// FileSink appends one JSON object per line to a rotated file.
type FileSink struct {
	mu sync.Mutex
	w  *lj.Logger
}

// NewFileSink creates a JSON-lines sink at path.
func NewFileSink(path string, r Rotation) *FileSink {
	return &FileSink{
		w: &lj.Logger{
			Filename:   path,
			MaxSize:    valOr(r.MaxSizeMB, DefaultMaxSizeMB),
			MaxBackups: valOr(r.MaxBackups, DefaultMaxBackups),
			MaxAge:     valOr(r.MaxAgeDays, DefaultMaxAgeDays),
			Compress:   r.Compress,
		},
	}
}

// Name identifies the sink in logs.
func (s *FileSink) Name() string { return "file" }

// Append writes e as a single line.
func (s *FileSink) Append(_ context.Context, e models.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.w.Write(data)
	return err
}

// Close closes the underlying file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Close()
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
