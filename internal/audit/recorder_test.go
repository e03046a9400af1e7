package audit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memStorage struct {
	mu      sync.Mutex
	batches int
	events  []Event
}

func (s *memStorage) WriteBatch(ctx context.Context, events []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches++
	// Копия: воркер переиспользует слайс batch после сброса
	s.events = append(s.events, events...)
	return nil
}

func (s *memStorage) kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Kind)
	}
	return out
}

func TestRecorderDrainsOnStop(t *testing.T) {
	storage := &memStorage{}
	rec := NewRecorder(storage, zap.NewNop(), 64, time.Hour) // Тикер не сработает — сброс только на Stop

	rec.Start()
	want := make([]string, 0, 10)
	for i := 0; i < 10; i++ {
		kind := fmt.Sprintf("event_%d", i)
		rec.Record(Event{ID: fmt.Sprintf("id-%d", i), Kind: kind})
		want = append(want, kind)
	}
	rec.Stop()

	// Все события дошли и в FIFO-порядке
	assert.Equal(t, want, storage.kinds())
}

func TestRecorderFlushesByInterval(t *testing.T) {
	storage := &memStorage{}
	rec := NewRecorder(storage, zap.NewNop(), 64, 20*time.Millisecond)

	rec.Start()
	rec.Record(Event{ID: "id-1", Kind: "breach_detected"})

	// Дожидаемся сброса по таймеру, не останавливая воркер
	require.Eventually(t, func() bool {
		return len(storage.kinds()) == 1
	}, time.Second, 10*time.Millisecond)

	rec.Stop()
}

func TestRecorderDropsAfterStop(t *testing.T) {
	storage := &memStorage{}
	rec := NewRecorder(storage, zap.NewNop(), 64, time.Hour)

	rec.Start()
	rec.Record(Event{ID: "id-1", Kind: "claim_paid"})
	rec.Stop()

	// Record после Stop — no-op, без паники на закрытом канале
	rec.Record(Event{ID: "id-2", Kind: "late_event"})
	assert.Equal(t, []string{"claim_paid"}, storage.kinds())
}

func TestRecorderStampsTimestamp(t *testing.T) {
	storage := &memStorage{}
	rec := NewRecorder(storage, zap.NewNop(), 64, time.Hour)

	rec.Start()
	rec.Record(Event{ID: "id-1", Kind: "funds_deposited"})
	rec.Stop()

	storage.mu.Lock()
	defer storage.mu.Unlock()
	require.Len(t, storage.events, 1)
	assert.False(t, storage.events[0].Timestamp.IsZero())
}
