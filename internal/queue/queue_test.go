package queue

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keagan/cutforge/internal/config"
	"github.com/keagan/cutforge/internal/jobs"
)

type chanSource struct {
	heavy chan Delivery
	light chan Delivery
}

func (s *chanSource) Consume(_ context.Context, q jobs.Queue) (<-chan Delivery, error) {
	if q == jobs.QueueLight {
		return s.light, nil
	}
	return s.heavy, nil
}

type recExecutor struct {
	mu   sync.Mutex
	ids  []string
	fail map[string]error
	done chan string
}

func (e *recExecutor) Execute(_ context.Context, id string) error {
	e.mu.Lock()
	e.ids = append(e.ids, id)
	err := e.fail[id]
	e.mu.Unlock()
	e.done <- id
	return err
}

type ackLog struct {
	mu     sync.Mutex
	acked  []string
	nacked map[string]bool
}

func (l *ackLog) delivery(name string, body []byte) Delivery {
	return NewDelivery(body,
		func() error {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.acked = append(l.acked, name)
			return nil
		},
		func(requeue bool) error {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.nacked[name] = requeue
			return nil
		})
}

func message(t *testing.T, id string, kind jobs.Kind) []byte {
	t.Helper()
	b, err := json.Marshal(Message{JobID: id, Kind: kind})
	require.NoError(t, err)
	return b
}

func TestPoolDispatchesAndAcks(t *testing.T) {
	src := &chanSource{heavy: make(chan Delivery), light: make(chan Delivery)}
	exec := &recExecutor{done: make(chan string, 4), fail: map[string]error{"j2": jobs.Validation("bad")}}
	acks := &ackLog{nacked: map[string]bool{}}

	ctx, cancel := context.WithCancel(context.Background())
	pool := NewPool(zerolog.Nop(), src, exec, 1, 1)
	errc := make(chan error, 1)
	go func() { errc <- pool.Run(ctx) }()

	src.heavy <- acks.delivery("j1", message(t, "j1", jobs.KindExport))
	src.light <- acks.delivery("j2", message(t, "j2", jobs.KindAssetMetadata))
	src.heavy <- acks.delivery("junk", []byte("{not json"))

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case id := <-exec.done:
			got[id] = true
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for jobs")
		}
	}
	assert.True(t, got["j1"])
	assert.True(t, got["j2"])

	require.Eventually(t, func() bool {
		acks.mu.Lock()
		defer acks.mu.Unlock()
		_, junk := acks.nacked["junk"]
		return len(acks.acked) == 2 && junk
	}, 2*time.Second, 5*time.Millisecond)
	assert.False(t, acks.nacked["junk"], "malformed messages are not requeued")

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not stop")
	}
}

func TestPoolStopsWhenSourceCloses(t *testing.T) {
	src := &chanSource{heavy: make(chan Delivery), light: make(chan Delivery)}
	pool := NewPool(zerolog.Nop(), src, &recExecutor{done: make(chan string, 1)}, 1, 1)
	close(src.heavy)
	err := pool.Run(context.Background())
	assert.ErrorContains(t, err, "heavy queue closed")
}

func TestQueueName(t *testing.T) {
	cfg := config.Default().AMQP
	assert.Equal(t, "cutforge.jobs.light", QueueName(cfg, jobs.QueueLight))
	assert.Equal(t, "cutforge.jobs.heavy", QueueName(cfg, jobs.QueueFor(jobs.KindExport)))
}
