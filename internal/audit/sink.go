package audit

import (
	"context"
	"time"

	"github.com/nerrad567/relaybox/internal/infrastructure/logging"
)

// writeTimeout bounds a single database insert from Emit.
const writeTimeout = 2 * time.Second

// Sink records every relay line through a Repository.
//
// Emit runs on the request goroutine, so a failed insert is logged and
// dropped rather than surfaced.
type Sink struct {
	repo   Repository
	logger *logging.Logger
	now    func() time.Time
}

// NewSink returns a Sink writing to repo.
func NewSink(repo Repository, logger *logging.Logger) *Sink {
	return &Sink{
		repo:   repo,
		logger: logger.With("component", "audit"),
		now:    time.Now,
	}
}

// Emit stores line with its derived direction.
func (s *Sink) Emit(line string) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	entry := &Entry{Line: line, CreatedAt: s.now()}
	if err := s.repo.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to record audit entry", "error", err)
	}
}
