package bot

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Dispatcher serializes inbound messages per conversation. Messages with the
// same key are handled one at a time in arrival order; different keys run
// concurrently. Each busy key is drained by its own goroutine, which exits
// once the key's queue is empty.
type Dispatcher struct {
	handle    func(context.Context, InboundMessage)
	keyOf     func(InboundMessage) string
	queueSize int
	log       *zap.Logger

	mu     sync.Mutex
	queues map[string][]InboundMessage // present while a drainer runs
	wg     sync.WaitGroup
}

// DispatcherOpts holds parameters for creating a Dispatcher.
type DispatcherOpts struct {
	Handle    func(context.Context, InboundMessage) // required
	KeyOf     func(InboundMessage) string           // defaults to ConversationKey
	QueueSize int                                   // pending messages per key; defaults to 16
	Logger    *zap.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(opts DispatcherOpts) *Dispatcher {
	d := &Dispatcher{
		handle:    opts.Handle,
		keyOf:     opts.KeyOf,
		queueSize: opts.QueueSize,
		log:       opts.Logger,
		queues:    make(map[string][]InboundMessage),
	}
	if d.keyOf == nil {
		d.keyOf = ConversationKey
	}
	if d.queueSize <= 0 {
		d.queueSize = 16
	}
	if d.log == nil {
		d.log = zap.NewNop()
	}
	return d
}

// Submit queues msg behind any message already in flight for the same
// conversation. It reports false when that conversation's queue is full
// and the message was dropped.
func (d *Dispatcher) Submit(ctx context.Context, msg InboundMessage) bool {
	key := d.keyOf(msg)

	d.mu.Lock()
	q, busy := d.queues[key]
	if busy {
		if len(q) >= d.queueSize {
			d.mu.Unlock()
			d.log.Warn("dispatch queue full, dropping message", zap.String("key", key))
			return false
		}
		d.queues[key] = append(q, msg)
		d.mu.Unlock()
		return true
	}
	d.queues[key] = nil
	d.wg.Add(1)
	d.mu.Unlock()

	go d.drain(ctx, key, msg)
	return true
}

func (d *Dispatcher) drain(ctx context.Context, key string, msg InboundMessage) {
	defer d.wg.Done()
	for {
		d.handle(ctx, msg)

		d.mu.Lock()
		q := d.queues[key]
		if len(q) == 0 || ctx.Err() != nil {
			if len(q) > 0 {
				d.log.Info("dropping queued messages on shutdown",
					zap.String("key", key), zap.Int("count", len(q)))
			}
			delete(d.queues, key)
			d.mu.Unlock()
			return
		}
		msg = q[0]
		d.queues[key] = q[1:]
		d.mu.Unlock()
	}
}

// Pending returns the number of conversations currently being processed.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queues)
}

// Wait blocks until every drainer has exited.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// ConversationKey returns the session key for msg.
func ConversationKey(msg InboundMessage) string {
	return sessionKey(msg).String()
}
