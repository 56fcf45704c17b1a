// Package stream moves encoded frames from the capture process to viewers.
//
// A frame source (HTTP poller or byte pipe) publishes each frame to the
// Broadcaster, which hands it to every open viewer without waiting. Each
// viewer owns a small bounded queue; when a viewer falls behind, the oldest
// queued frame is discarded to make room.
package stream

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// DefaultQueueSize is the per-viewer queue length when none is configured.
const DefaultQueueSize = 8

// Viewer is one connected viewer's outbound frame queue.
type Viewer struct {
	ID string

	queue chan []byte
	done  chan struct{}

	mu     sync.Mutex // serializes enqueue against Close
	closed bool

	sent    atomic.Uint64
	dropped atomic.Uint64
}

func newViewer(queueSize int) *Viewer {
	return &Viewer{
		ID:    uuid.New().String(),
		queue: make(chan []byte, queueSize),
		done:  make(chan struct{}),
	}
}

// Frames yields queued frames in publish order.
func (v *Viewer) Frames() <-chan []byte {
	return v.queue
}

// Done is closed once the viewer is closed.
func (v *Viewer) Done() <-chan struct{} {
	return v.done
}

// Close marks the viewer closed. Later frames are skipped. Safe to call
// more than once.
func (v *Viewer) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.closed {
		v.closed = true
		close(v.done)
	}
}

// enqueue never blocks. When the queue is full the oldest frame is evicted.
func (v *Viewer) enqueue(frame []byte) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return false
	}

	for {
		select {
		case v.queue <- frame:
			v.sent.Add(1)
			return true
		default:
		}

		select {
		case <-v.queue:
			v.dropped.Add(1)
		default:
		}
	}
}

// ViewerStats counts frames for one viewer. Sent counts frames accepted
// into the queue; Dropped counts queued frames evicted by newer ones.
type ViewerStats struct {
	Sent    uint64 `json:"sent"`
	Dropped uint64 `json:"dropped"`
}

// Stats is a point-in-time snapshot of the broadcaster.
type Stats struct {
	FramesPublished uint64                 `json:"framesPublished"`
	ActiveViewers   int                    `json:"activeViewers"`
	TotalSent       uint64                 `json:"totalSent"`
	TotalDropped    uint64                 `json:"totalDropped"`
	Viewers         map[string]ViewerStats `json:"viewers"`
}

// Broadcaster fans frames out to the current set of viewers.
type Broadcaster struct {
	mu        sync.RWMutex
	viewers   map[string]*Viewer
	queueSize int

	published atomic.Uint64
}

func NewBroadcaster(queueSize int) *Broadcaster {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Broadcaster{
		viewers:   make(map[string]*Viewer),
		queueSize: queueSize,
	}
}

// Join registers a new viewer.
func (b *Broadcaster) Join() *Viewer {
	v := newViewer(b.queueSize)

	b.mu.Lock()
	b.viewers[v.ID] = v
	b.mu.Unlock()

	return v
}

// Leave closes v and removes it from the viewer set.
func (b *Broadcaster) Leave(v *Viewer) {
	v.Close()

	b.mu.Lock()
	delete(b.viewers, v.ID)
	b.mu.Unlock()
}

// Broadcast offers frame to every viewer and returns how many accepted it.
// Closed viewers are skipped. The frame is shared and must not be modified
// afterwards.
func (b *Broadcaster) Broadcast(frame []byte) int {
	b.published.Add(1)

	b.mu.RLock()
	viewers := make([]*Viewer, 0, len(b.viewers))
	for _, v := range b.viewers {
		viewers = append(viewers, v)
	}
	b.mu.RUnlock()

	delivered := 0
	for _, v := range viewers {
		if v.enqueue(frame) {
			delivered++
		}
	}
	return delivered
}

// ViewerCount returns the number of registered viewers.
func (b *Broadcaster) ViewerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.viewers)
}

func (b *Broadcaster) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	stats := Stats{
		FramesPublished: b.published.Load(),
		ActiveViewers:   len(b.viewers),
		Viewers:         make(map[string]ViewerStats, len(b.viewers)),
	}
	for id, v := range b.viewers {
		vs := ViewerStats{Sent: v.sent.Load(), Dropped: v.dropped.Load()}
		stats.TotalSent += vs.Sent
		stats.TotalDropped += vs.Dropped
		stats.Viewers[id] = vs
	}
	return stats
}

// Close closes every viewer, which ends their connections.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, v := range b.viewers {
		v.Close()
		delete(b.viewers, id)
	}
}
