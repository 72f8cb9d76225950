package history

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Match is one successful start, as recorded for later inspection.
type Match struct {
	ID        uint      `gorm:"primaryKey"`
	RoomCode  string    `gorm:"size:5;index"`
	RoomName  string    `gorm:"size:64"`
	Port      int
	Players   int
	Public    bool
	StartedAt time.Time `gorm:"index"`
}

type Recorder interface {
	Record(ctx context.Context, m Match) error
}

// Nop discards every match. The broker uses it when no database is configured.
type Nop struct{}

func (Nop) Record(context.Context, Match) error { return nil }

// Memory keeps matches in a slice. Tests use it to observe what was recorded.
type Memory struct {
	mu      sync.Mutex
	matches []Match
}

func (m *Memory) Record(_ context.Context, match Match) error {
	m.mu.Lock()
	m.matches = append(m.matches, match)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Matches() []Match {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Match, len(m.matches))
	copy(out, m.matches)
	return out
}

// Async hands matches to a background writer so the caller never waits on
// the backing store. When the queue is full the match is dropped and logged.
type Async struct {
	rec   Recorder
	log   *zap.Logger
	queue chan Match
	done  chan struct{}
	once  sync.Once
}

func NewAsync(rec Recorder, log *zap.Logger, buffer int) *Async {
	a := &Async{
		rec:   rec,
		log:   log.Named("history"),
		queue: make(chan Match, buffer),
		done:  make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) Enqueue(m Match) {
	select {
	case a.queue <- m:
	default:
		a.log.Warn("history queue full, dropping match", zap.String("room", m.RoomCode))
	}
}

func (a *Async) run() {
	defer close(a.done)
	for m := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.rec.Record(ctx, m); err != nil {
			a.log.Error("record match", zap.String("room", m.RoomCode), zap.Error(err))
		}
		cancel()
	}
}

// Close drains the queue. Enqueue must not be called afterwards.
func (a *Async) Close(ctx context.Context) error {
	a.once.Do(func() { close(a.queue) })
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
