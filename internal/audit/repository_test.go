package audit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/relaybox/internal/infrastructure/database"
	"github.com/nerrad567/relaybox/internal/infrastructure/logging"
	"github.com/nerrad567/relaybox/internal/relay"
	_ "github.com/nerrad567/relaybox/migrations"
)

// setupTestDB opens an in-memory database with the real schema applied.
func setupTestDB(t *testing.T) *database.DB {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

func TestCreateAndList(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t).DB)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	lines := []string{
		"relay started: http://0.0.0.0:8080",
		`A[dev1] ->relay:{"device_id":"dev1","message":"hi","timestamp":"10:00:01"}`,
		`relay[dev1] ->A:{"device_id":"dev1","message":"hi","timestamp":"10:00:01"}`,
	}
	for i, line := range lines {
		entry := &Entry{Line: line, CreatedAt: base.Add(time.Duration(i) * time.Second)}
		if err := repo.Create(ctx, entry); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if !strings.HasPrefix(entry.ID, "aud-") {
			t.Errorf("ID = %q, want aud- prefix", entry.ID)
		}
	}

	res, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 3 || len(res.Entries) != 3 {
		t.Fatalf("List() total=%d len=%d, want 3/3", res.Total, len(res.Entries))
	}
	if res.Limit != defaultLimit {
		t.Errorf("Limit = %d, want %d", res.Limit, defaultLimit)
	}

	// Newest first.
	want := []relay.Direction{relay.DirectionOutbound, relay.DirectionInbound, relay.DirectionSystem}
	for i, e := range res.Entries {
		if e.Direction != want[i] {
			t.Errorf("Entries[%d].Direction = %q, want %q", i, e.Direction, want[i])
		}
		if e.Line != lines[len(lines)-1-i] {
			t.Errorf("Entries[%d].Line = %q", i, e.Line)
		}
	}
	if !res.Entries[2].CreatedAt.Equal(base) {
		t.Errorf("CreatedAt = %v, want %v", res.Entries[2].CreatedAt, base)
	}
}

func TestListFilterAndPaging(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t).DB)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i := range 5 {
		if err := repo.Create(ctx, &Entry{
			Line:      "relay[dev] ->B:{}",
			CreatedAt: base.Add(time.Duration(i) * time.Millisecond),
		}); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}
	if err := repo.Create(ctx, &Entry{Line: "relay stopped", CreatedAt: base}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	tests := []struct {
		name      string
		filter    Filter
		wantTotal int
		wantLen   int
		wantLimit int
	}{
		{"all", Filter{}, 6, 6, defaultLimit},
		{"outbound only", Filter{Direction: relay.DirectionOutbound}, 5, 5, defaultLimit},
		{"system only", Filter{Direction: relay.DirectionSystem}, 1, 1, defaultLimit},
		{"page", Filter{Limit: 2, Offset: 1}, 6, 2, 2},
		{"offset past end", Filter{Offset: 10}, 6, 0, defaultLimit},
		{"limit clamped", Filter{Limit: 1000}, 6, 6, maxLimit},
		{"negative offset", Filter{Offset: -3}, 6, 6, defaultLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if res.Total != tt.wantTotal {
				t.Errorf("Total = %d, want %d", res.Total, tt.wantTotal)
			}
			if len(res.Entries) != tt.wantLen {
				t.Errorf("len(Entries) = %d, want %d", len(res.Entries), tt.wantLen)
			}
			if res.Limit != tt.wantLimit {
				t.Errorf("Limit = %d, want %d", res.Limit, tt.wantLimit)
			}
			if res.Entries == nil {
				t.Error("Entries should be empty, not nil")
			}
		})
	}
}

func TestCreateRejectsUnknownDirection(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t).DB)

	err := repo.Create(context.Background(), &Entry{Line: "x", Direction: "sideways"})
	if err == nil {
		t.Error("Create() with unknown direction should fail the CHECK constraint")
	}
}

type failingRepo struct{ calls int }

func (r *failingRepo) Create(context.Context, *Entry) error {
	r.calls++
	return errors.New("disk full")
}

func (r *failingRepo) List(context.Context, Filter) (*ListResult, error) {
	return nil, errors.New("not implemented")
}

func TestSink(t *testing.T) {
	t.Run("records lines", func(t *testing.T) {
		repo := NewSQLiteRepository(setupTestDB(t).DB)
		sink := NewSink(repo, logging.Discard())

		sink.Emit("relay started: http://127.0.0.1:8080")
		sink.Emit(`B[x] ->relay:{"device_id":"x","message":"m","timestamp":"10:00:00"}`)

		res, err := repo.List(context.Background(), Filter{Direction: relay.DirectionInbound})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if res.Total != 1 {
			t.Errorf("inbound total = %d, want 1", res.Total)
		}
	})

	t.Run("repository errors are swallowed", func(t *testing.T) {
		repo := &failingRepo{}
		sink := NewSink(repo, logging.Discard())

		sink.Emit("relay stopped")
		if repo.calls != 1 {
			t.Errorf("Create calls = %d, want 1", repo.calls)
		}
	})
}
