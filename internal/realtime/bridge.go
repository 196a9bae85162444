package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// redisEventsChannel is the pub/sub topic shared by all instances.
const redisEventsChannel = "galynx:ws:events"

const (
	publishRetryDelay  = 400 * time.Millisecond
	subscribeReconnect = time.Second
)

// wireEnvelope wraps an event with the publishing instance's tag so
// subscribers can drop their own traffic.
type wireEnvelope struct {
	SourceInstanceID string `json:"source_instance_id"`
	Event            Event  `json:"event"`
}

// Bridge replicates hub events across instances through redis pub/sub. The
// outbox is unbounded: a redis outage delays delivery rather than dropping
// mutations.
type Bridge struct {
	client     redis.UniversalClient
	hub        *Hub
	instanceID string

	mu      sync.Mutex
	cond    *sync.Cond
	pending [][]byte
	stopped bool

	log zerolog.Logger
}

// NewBridge parses the redis URL, attaches the bridge to the hub, and returns
// it. Call Start to begin pumping events.
func NewBridge(redisURL string, hub *Hub, logger zerolog.Logger) (*Bridge, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	b := &Bridge{
		client:     redis.NewClient(opts),
		hub:        hub,
		instanceID: hub.InstanceID(),
		log:        logger.With().Str("component", "realtime-bridge").Logger(),
	}
	b.cond = sync.NewCond(&b.mu)
	hub.attachBridge(b)
	return b, nil
}

// newBridgeWithClient wires a bridge over an existing client. Tests use it
// with miniredis.
func newBridgeWithClient(client redis.UniversalClient, hub *Hub, logger zerolog.Logger) *Bridge {
	b := &Bridge{
		client:     client,
		hub:        hub,
		instanceID: hub.InstanceID(),
		log:        logger.With().Str("component", "realtime-bridge").Logger(),
	}
	b.cond = sync.NewCond(&b.mu)
	hub.attachBridge(b)
	return b
}

// Start launches the publisher and subscriber loops. Both run until the
// context is cancelled.
func (b *Bridge) Start(ctx context.Context) {
	go b.runPublisher(ctx)
	go b.runSubscriber(ctx)
	go func() {
		<-ctx.Done()
		b.mu.Lock()
		b.stopped = true
		b.mu.Unlock()
		b.cond.Broadcast()
	}()
	b.log.Info().Msg("Realtime redis bridge enabled")
}

// publish queues an event for cross-instance delivery.
func (b *Bridge) publish(event Event) {
	raw, err := json.Marshal(wireEnvelope{SourceInstanceID: b.instanceID, Event: event})
	if err != nil {
		b.log.Warn().Err(err).Msg("Failed to serialize bridged event")
		return
	}

	b.mu.Lock()
	b.pending = append(b.pending, raw)
	b.mu.Unlock()
	b.cond.Signal()
}

// runPublisher drains the outbox in order, retrying each payload until redis
// accepts it.
func (b *Bridge) runPublisher(ctx context.Context) {
	for {
		payload, ok := b.nextPayload()
		if !ok {
			return
		}
		for {
			if ctx.Err() != nil {
				return
			}
			if err := b.client.Publish(ctx, redisEventsChannel, payload).Err(); err != nil {
				b.log.Warn().Err(err).Msg("Redis publish failed, retrying")
				time.Sleep(publishRetryDelay)
				continue
			}
			break
		}
	}
}

func (b *Bridge) nextPayload() ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.pending) == 0 && !b.stopped {
		b.cond.Wait()
	}
	if b.stopped && len(b.pending) == 0 {
		return nil, false
	}
	payload := b.pending[0]
	b.pending = b.pending[1:]
	return payload, true
}

// runSubscriber consumes the shared topic and re-injects foreign events into
// the local hub. The loop reconnects forever; it only exits with the context.
func (b *Bridge) runSubscriber(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := b.consume(ctx); err != nil {
			b.log.Warn().Err(err).Msg("Redis subscriber failed, reconnecting")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(subscribeReconnect):
		}
	}
}

func (b *Bridge) consume(ctx context.Context) error {
	pubsub := b.client.Subscribe(ctx, redisEventsChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-pubsub.Channel():
			if !ok {
				return nil
			}
			b.dispatch([]byte(msg.Payload))
		}
	}
}

func (b *Bridge) dispatch(payload []byte) {
	var envelope wireEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return
	}
	// Loop suppression: our own events already went out locally.
	if envelope.SourceInstanceID == b.instanceID {
		return
	}
	if envelope.Event.WorkspaceID == nil {
		return
	}
	b.hub.emitLocal(*envelope.Event.WorkspaceID, envelope.Event)
}
