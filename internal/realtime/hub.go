package realtime

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// subscriberBuffer bounds each subscription's queue. A subscriber that falls
// this far behind starts losing events but stays attached.
const subscriberBuffer = 1024

// Subscription receives the events of one workspace. Close detaches it.
type Subscription struct {
	hub         *Hub
	workspaceID uuid.UUID
	events      chan Event
	done        chan struct{}
	dropped     atomic.Uint64
	closeOnce   sync.Once
}

// Dropped counts events skipped because the subscriber's queue was full.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Events is the subscription's delivery channel. The events channel is never
// closed; consumers select on Done to learn the subscription ended.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Done is closed when the subscription is detached.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close detaches the subscription from the hub.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.hub.unsubscribe(s)
		close(s.done)
	})
}

// Hub is the per-process broadcast registry. Publishers never block: a full
// subscriber queue drops that subscriber's copy of the event with a warning.
type Hub struct {
	mu         sync.RWMutex
	workspaces map[uuid.UUID]map[*Subscription]struct{}
	instanceID string
	bridge     *Bridge
	log        zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		workspaces: make(map[uuid.UUID]map[*Subscription]struct{}),
		instanceID: uuid.NewString(),
		log:        logger.With().Str("component", "realtime").Logger(),
	}
}

// InstanceID is the per-process tag stamped on bridged events.
func (h *Hub) InstanceID() string {
	return h.instanceID
}

// Subscribe attaches a new subscription to a workspace's broadcast domain.
func (h *Hub) Subscribe(workspaceID uuid.UUID) *Subscription {
	sub := &Subscription{
		hub:         h,
		workspaceID: workspaceID,
		events:      make(chan Event, subscriberBuffer),
		done:        make(chan struct{}),
	}

	h.mu.Lock()
	set, ok := h.workspaces[workspaceID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.workspaces[workspaceID] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	return sub
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	if set, ok := h.workspaces[sub.workspaceID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.workspaces, sub.workspaceID)
		}
	}
	h.mu.Unlock()
}

// Emit delivers an event to every local subscriber of the workspace and, when
// the redis bridge is attached, forwards it to the other instances.
func (h *Hub) Emit(workspaceID uuid.UUID, event Event) {
	h.emitLocal(workspaceID, event)
	if h.bridge != nil {
		h.bridge.publish(event)
	}
}

// emitLocal fans out within this process only. The bridge subscriber uses it
// to re-inject remote events without echoing them back out.
func (h *Hub) emitLocal(workspaceID uuid.UUID, event Event) {
	h.mu.RLock()
	subs := make([]*Subscription, 0, len(h.workspaces[workspaceID]))
	for sub := range h.workspaces[workspaceID] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.events <- event:
		default:
			h.log.Warn().
				Str("workspace_id", workspaceID.String()).
				Str("event_type", event.EventType).
				Uint64("dropped", sub.dropped.Add(1)).
				Msg("Subscriber lagged, event skipped")
		}
	}
}

// attachBridge is called once during startup, before any Emit.
func (h *Hub) attachBridge(b *Bridge) {
	h.bridge = b
}
