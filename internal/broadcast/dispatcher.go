// Package broadcast fans events out to the connections currently in a
// room, and globally for presence counts. Delivery is best-effort to live
// connections at publish time: there is no buffering or replay, and a
// recipient that fails mid-delivery is skipped without affecting the rest.
package broadcast

import (
	"log"
	"sync"

	"github.com/cheerside/league-chat/internal/metrics"
	"github.com/cheerside/league-chat/internal/rooms"
)

// SendFunc writes a frame to a single connection by id.
type SendFunc func(connID string, data []byte) error

// SendAllFunc writes a frame to every live connection.
type SendAllFunc func(data []byte)

// Dispatcher delivers room-scoped and global events. When constructed with
// a Bridge it publishes through NATS so that every server instance,
// including this one, delivers to its local members; without a bridge it
// delivers locally in the same call.
type Dispatcher struct {
	registry *rooms.Registry
	send     SendFunc
	sendAll  SendAllFunc
	bridge   *Bridge

	// mu serializes local delivery so that publishes to the same room are
	// observed by every member in publish order.
	mu sync.Mutex
}

// NewDispatcher creates a Dispatcher. bridge may be nil for single-instance
// deployments; Start must be called before publishing when it is not.
func NewDispatcher(registry *rooms.Registry, send SendFunc, sendAll SendAllFunc, bridge *Bridge) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		send:     send,
		sendAll:  sendAll,
		bridge:   bridge,
	}
}

// Start subscribes the dispatcher to the bridge's room and global subjects.
// It is a no-op without a bridge.
func (d *Dispatcher) Start() error {
	if d.bridge == nil {
		return nil
	}
	if err := d.bridge.SubscribeRooms(d.deliverRoom); err != nil {
		return err
	}
	return d.bridge.SubscribeGlobal(d.deliverGlobal)
}

// Publish delivers data to every connection currently in roomID.
// Connections that join after the publish do not receive it.
func (d *Dispatcher) Publish(roomID int64, data []byte) error {
	if d.bridge != nil {
		return d.bridge.PublishRoom(roomID, data)
	}
	d.deliverRoom(roomID, data)
	return nil
}

// PublishGlobal delivers data to every connected client regardless of room.
// Used only for presence counts.
func (d *Dispatcher) PublishGlobal(data []byte) error {
	if d.bridge != nil {
		return d.bridge.PublishGlobal(data)
	}
	d.deliverGlobal(data)
	return nil
}

// deliverRoom writes to the room's current members. Per-recipient write
// failures are swallowed; dead connections are reaped by the heartbeat.
func (d *Dispatcher) deliverRoom(roomID int64, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()

	members := d.registry.MembersOf(roomID)
	dropped := 0
	for _, connID := range members {
		if err := d.send(connID, data); err != nil {
			dropped++
		}
	}
	metrics.BroadcastsTotal.Inc()
	if dropped > 0 {
		metrics.DroppedWritesTotal.Add(float64(dropped))
		log.Printf("broadcast: room=%d delivered=%d dropped=%d", roomID, len(members)-dropped, dropped)
	}
}

func (d *Dispatcher) deliverGlobal(data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sendAll(data)
	metrics.BroadcastsTotal.Inc()
}
