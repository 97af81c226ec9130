package broadcast

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subject patterns used for cross-instance fan-out.
const (
	SubjectRoomPrefix = "room." // + <room_id>
	SubjectPresence   = "presence.counts"
)

// Bridge wraps a NATS connection so room events publish once and every
// server instance delivers them to its own local members. A single NATS
// subscription dispatches callbacks serially, which preserves per-room
// publish order across instances.
type Bridge struct {
	conn *nats.Conn
	subs []*nats.Subscription
}

// BridgeConfig holds NATS connection settings.
type BridgeConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultBridgeConfig returns sensible defaults.
func DefaultBridgeConfig() BridgeConfig {
	return BridgeConfig{
		URL:           "nats://localhost:4222",
		Name:          "league-chat",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// NewBridge connects to NATS with the given config and returns a ready bridge.
func NewBridge(config BridgeConfig) (*Bridge, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("[nats] connected to %s", nc.ConnectedUrl())
	return &Bridge{conn: nc}, nil
}

// PublishRoom publishes data to the room.<roomID> subject.
func (b *Bridge) PublishRoom(roomID int64, data []byte) error {
	return b.conn.Publish(SubjectRoomPrefix+strconv.FormatInt(roomID, 10), data)
}

// PublishGlobal publishes data to the presence subject.
func (b *Bridge) PublishGlobal(data []byte) error {
	return b.conn.Publish(SubjectPresence, data)
}

// SubscribeRooms subscribes to all room subjects. The room id is parsed
// from the subject suffix; messages with a malformed suffix are dropped.
func (b *Bridge) SubscribeRooms(handler func(roomID int64, data []byte)) error {
	sub, err := b.conn.Subscribe(SubjectRoomPrefix+">", func(msg *nats.Msg) {
		suffix := strings.TrimPrefix(msg.Subject, SubjectRoomPrefix)
		roomID, err := strconv.ParseInt(suffix, 10, 64)
		if err != nil {
			log.Printf("[nats] bad room subject %q", msg.Subject)
			return
		}
		handler(roomID, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe rooms: %w", err)
	}
	b.subs = append(b.subs, sub)
	return nil
}

// SubscribeGlobal subscribes to the presence subject.
func (b *Bridge) SubscribeGlobal(handler func(data []byte)) error {
	sub, err := b.conn.Subscribe(SubjectPresence, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe presence: %w", err)
	}
	b.subs = append(b.subs, sub)
	return nil
}

// Close drains all subscriptions and the connection.
func (b *Bridge) Close() {
	for _, sub := range b.subs {
		if err := sub.Drain(); err != nil {
			log.Printf("[nats] drain %s: %v", sub.Subject, err)
		}
	}
	if err := b.conn.Drain(); err != nil {
		log.Printf("[nats] connection drain: %v", err)
	}
	log.Printf("[nats] bridge closed")
}
