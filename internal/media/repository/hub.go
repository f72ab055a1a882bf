package repository

import (
	"sync"

	"github.com/romariotrain/media-pipeline/internal/media/models"
)

// Hub fans record snapshots out to per-record subscribers. Each subscriber
// channel holds at most one snapshot: a newer one replaces an unread older
// one, so a slow reader only ever sees the latest state.
//
// Publish calls must come in load order. A snapshot loaded outside that
// order goes through PublishSince.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan models.Snapshot]struct{}
	seq  map[string]uint64
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[chan models.Snapshot]struct{}),
		seq:  make(map[string]uint64),
	}
}

func (h *Hub) Add(id string) chan models.Snapshot {
	ch := make(chan models.Snapshot, 1)
	h.mu.Lock()
	if h.subs[id] == nil {
		h.subs[id] = make(map[chan models.Snapshot]struct{})
	}
	h.subs[id][ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Remove unregisters and closes ch. Safe to call once per channel.
func (h *Hub) Remove(id string, ch chan models.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[id][ch]; !ok {
		return
	}
	delete(h.subs[id], ch)
	if len(h.subs[id]) == 0 {
		delete(h.subs, id)
		delete(h.seq, id)
	}
	close(ch)
}

func (h *Hub) Publish(id string, snap models.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.publishLocked(id, snap)
}

// Seq returns the number of snapshots published for id so far. Read it
// before loading a snapshot that will be handed to PublishSince.
func (h *Hub) Seq(id string) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.seq[id]
}

// PublishSince publishes snap only if nothing was published for id after
// seq was read, and reports whether it did.
func (h *Hub) PublishSince(id string, seq uint64, snap models.Snapshot) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.seq[id] != seq {
		return false
	}
	h.publishLocked(id, snap)
	return true
}

func (h *Hub) publishLocked(id string, snap models.Snapshot) {
	if _, ok := h.subs[id]; !ok {
		return
	}
	h.seq[id]++
	for ch := range h.subs[id] {
		s := snap
		s.Item = snap.Item.Clone()
		select {
		case ch <- s:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
}

// Watched lists the record ids that currently have subscribers.
func (h *Hub) Watched() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]string, 0, len(h.subs))
	for id := range h.subs {
		ids = append(ids, id)
	}
	return ids
}

func (h *Hub) Subscribers(id string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[id])
}
