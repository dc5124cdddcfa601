// Package broadcaster multiplexes registry snapshots to every
// subscribed push-stream (WebSocket) client.
//
// Each subscriber owns a dedicated write goroutine draining a bounded
// queue, so one slow client's write cannot stall serialization for the
// others.
package broadcaster

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"dispatcher/internal/registry"
)

const (
	DefaultInterval = time.Second
	sendQueueSize   = 8
	writeDeadline   = 2 * time.Second
)

// Conn is the minimal interface the broadcaster needs from a
// WebSocket connection, satisfied by *websocket.Conn.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type subscriber struct {
	id    string
	conn  Conn
	queue chan []byte
	done  chan struct{}
}

// Broadcaster fans out registry snapshots to subscribed clients.
type Broadcaster struct {
	reg *registry.Registry
	log *zap.Logger

	mu   sync.Mutex
	subs map[string]*subscriber
}

// New creates a Broadcaster bound to a registry.
func New(reg *registry.Registry, log *zap.Logger) *Broadcaster {
	return &Broadcaster{
		reg:  reg,
		log:  log,
		subs: make(map[string]*subscriber),
	}
}

// Subscribe registers conn and immediately sends it one snapshot. The
// returned id is used with Unsubscribe.
func (b *Broadcaster) Subscribe(conn Conn) string {
	sub := &subscriber{
		id:    uuid.NewString(),
		conn:  conn,
		queue: make(chan []byte, sendQueueSize),
		done:  make(chan struct{}),
	}

	b.mu.Lock()
	b.subs[sub.id] = sub
	b.mu.Unlock()

	go b.drain(sub)

	b.enqueue(sub, b.encode())
	return sub.id
}

// Unsubscribe removes and closes the subscriber's connection.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	b.mu.Unlock()

	if ok {
		close(sub.done)
		sub.conn.Close()
	}
}

// Broadcast serializes the current snapshot once and fans it out to
// every subscriber's bounded queue. A full queue means the subscriber
// is too slow; it is dropped rather than stalling the others.
func (b *Broadcaster) Broadcast() {
	payload := b.encode()

	b.mu.Lock()
	subs := make([]*subscriber, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		b.enqueue(sub, payload)
	}
}

func (b *Broadcaster) enqueue(sub *subscriber, payload []byte) {
	select {
	case sub.queue <- payload:
	default:
		if b.log != nil {
			b.log.Warn("push-stream subscriber queue full, dropping subscriber", zap.String("subscriber", sub.id))
		}
		b.Unsubscribe(sub.id)
	}
}

func (b *Broadcaster) drain(sub *subscriber) {
	for {
		select {
		case <-sub.done:
			return
		case payload := <-sub.queue:
			sub.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := sub.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				b.Unsubscribe(sub.id)
				return
			}
		}
	}
}

func (b *Broadcaster) encode() []byte {
	snap := b.reg.Snapshot()
	data, err := json.Marshal(snap)
	if err != nil {
		if b.log != nil {
			b.log.Error("failed to marshal snapshot", zap.Error(err))
		}
		return []byte(`{}`)
	}
	return data
}

// Run ticks Broadcast every interval until ctx is cancelled.
func (b *Broadcaster) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.Broadcast()
		}
	}
}

// SubscriberCount returns the number of currently subscribed clients
// (used by tests).
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
