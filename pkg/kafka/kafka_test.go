package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
	hits int
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.hits++
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func testProducer(w messageWriter, maxFailures uint32) *Producer {
	cfg := defaultProducerConfig()
	cfg.BreakerMaxFailures = maxFailures
	cfg.BreakerTimeout = time.Minute
	cfg.Registerer = prometheus.NewRegistry()
	return newProducer(w, cfg)
}

func TestProducerEncodesValues(t *testing.T) {
	w := &fakeWriter{}
	p := testProducer(w, 5)

	require.NoError(t, p.Publish(context.Background(), "fincast.forecasts", []byte("AAPL"), map[string]any{"tickerName": "AAPL"}))
	require.NoError(t, p.PublishMessage(context.Background(), "fincast.logs", "plain"))
	require.NoError(t, p.PublishBatch(context.Background(), "fincast.logs", nil))

	require.Len(t, w.msgs, 2)
	assert.Equal(t, "fincast.forecasts", w.msgs[0].Topic)
	assert.Equal(t, []byte("AAPL"), w.msgs[0].Key)
	var decoded map[string]string
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, "AAPL", decoded["tickerName"])
	assert.Equal(t, []byte("plain"), w.msgs[1].Value)
	assert.Nil(t, w.msgs[1].Key)
}

func TestProducerBreakerOpensAfterFailures(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := testProducer(w, 2)

	for i := 0; i < 2; i++ {
		require.Error(t, p.Publish(context.Background(), "t", nil, "x"))
	}
	assert.Equal(t, "open", p.BreakerState())

	err := p.Publish(context.Background(), "t", nil, "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker is open")
	assert.Equal(t, 2, w.hits)
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	_, err := NewProducer()
	require.Error(t, err)
}

func TestBackoffWithJitterBounds(t *testing.T) {
	for attempt := 1; attempt <= 10; attempt++ {
		d := backoffWithJitter(10*time.Millisecond, 80*time.Millisecond, attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 80*time.Millisecond)
	}
}

type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []kafka.Message
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		m := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) commits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

type flakyHandler struct {
	mu       sync.Mutex
	failures int
	calls    int
	panics   bool
}

func (h *flakyHandler) Topic() string { return "fincast.bars" }

func (h *flakyHandler) Handle(context.Context, []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	if h.panics {
		panic("boom")
	}
	if h.calls <= h.failures {
		return errors.New("transient")
	}
	return nil
}

func (h *flakyHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

func testConsumer(r *fakeReader, dlq messageWriter) *Consumer {
	c := newConsumer(&ConsumerConfig{
		WorkerCount: 2,
		BufferSize:  4,
		RetryMax:    2,
		BackoffMin:  time.Millisecond,
		BackoffMax:  2 * time.Millisecond,
		DLQTopic:    "fincast.dlq",
		Registerer:  prometheus.NewRegistry(),
	})
	c.newReader = func(string) messageReader { return r }
	if dlq != nil {
		c.dlq = dlq
	}
	return c
}

func TestConsumerRetriesThenCommits(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{{Topic: "fincast.bars", Value: []byte("{}")}}}
	h := &flakyHandler{failures: 2}
	c := testConsumer(r, nil)
	c.RegisterHandler(h)
	require.NoError(t, c.Start())

	assert.Eventually(t, func() bool { return r.commits() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, h.count())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Stop(ctx))
}

func TestConsumerParksPoisonMessageOnDLQ(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{{Topic: "fincast.bars", Key: []byte("AAPL"), Value: []byte("bad")}}}
	dlq := &fakeWriter{}
	h := &flakyHandler{panics: true}
	c := testConsumer(r, dlq)
	c.RegisterHandler(h)
	require.NoError(t, c.Start())

	assert.Eventually(t, func() bool { return r.commits() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, h.count())

	dlq.mu.Lock()
	require.Len(t, dlq.msgs, 1)
	assert.Equal(t, "fincast.dlq", dlq.msgs[0].Topic)
	assert.Equal(t, []byte("bad"), dlq.msgs[0].Value)
	dlq.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Stop(ctx))
}

func TestConsumerStartRequiresHandlers(t *testing.T) {
	c := testConsumer(&fakeReader{}, nil)
	require.Error(t, c.Start())
}
