package eventlog

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/KarmveerSingh18/prototype-4/internal/models"
)

type memSink struct {
	mu     sync.Mutex
	events []models.Event
	err    error
}

func (m *memSink) Name() string { return "mem" }

func (m *memSink) Append(_ context.Context, e models.Event) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *memSink) Close() error { return nil }

func TestRecord_FailingSinkDoesNotBlockOthers(t *testing.T) {
	bad := &memSink{err: errors.New("disk full")}
	good := &memSink{}
	l := New(zap.NewNop(), bad, good)

	l.Record(context.Background(), models.Event{PID: 7, Name: "app", Kind: string(models.IssueHighCPU)})

	if len(good.events) != 1 {
		t.Fatalf("good sink got %d events, want 1", len(good.events))
	}
	if good.events[0].Time.IsZero() {
		t.Error("event time was not stamped")
	}
}

func TestFileSink_WritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	s := NewFileSink(path, Rotation{})

	for _, kind := range []string{"high_cpu", models.ActionTerminated} {
		if err := s.Append(context.Background(), models.Event{PID: 1, Name: "x", Kind: kind}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var kinds []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e models.Event
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("line %q is not JSON: %v", sc.Text(), err)
		}
		kinds = append(kinds, e.Kind)
	}
	if len(kinds) != 2 || kinds[1] != models.ActionTerminated {
		t.Errorf("kinds = %v", kinds)
	}
}

func TestSQLiteSink_AppendAndRecent(t *testing.T) {
	s, err := NewSQLiteSink("sqlite://" + filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	ctx := context.Background()
	for i, kind := range []string{"unresponsive", models.ActionHealStart, models.ActionKilled} {
		e := models.Event{PID: int32(100 + i), Name: "frozen", Kind: kind, ActionID: "abc", Detail: "d"}
		if err := s.Append(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("Recent returned %d rows, want 2", len(got))
	}
	if got[0].Kind != models.ActionKilled || got[0].PID != 102 {
		t.Errorf("newest = %+v, want killed pid 102", got[0])
	}
	if got[1].ActionID != "abc" {
		t.Errorf("action id not round-tripped: %+v", got[1])
	}
}

func TestNewSQLiteSink_EmptyDSN(t *testing.T) {
	if _, err := NewSQLiteSink("  "); err == nil {
		t.Error("expected error for empty DSN")
	}
}
