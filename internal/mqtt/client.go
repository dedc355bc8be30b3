package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"howsair-beacon/internal/config"
	"howsair-beacon/internal/types"
)

var (
	ErrNotConnected = errors.New("mqtt client not connected")
	ErrStopped      = errors.New("mqtt client stopped")
)

const publishTimeout = 5 * time.Second

type Client struct {
	client    mqtt.Client
	beaconID  string
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

func TelemetryTopic(beaconID string) string { return fmt.Sprintf("beacons/%s/telemetry", beaconID) }

func StatusTopic(beaconID string) string { return fmt.Sprintf("beacons/%s/status", beaconID) }

func NewClient(cfg config.Config, logger *slog.Logger) (*Client, error) {
	if cfg.BeaconID == "" {
		return nil, errors.New("mqtt: empty beacon id")
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		beaconID: cfg.BeaconID,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTTBroker, cfg.MQTTPort))
	opts.SetClientID(cfg.MQTTClientID)
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	// Broker flips the retained status to offline if we vanish.
	opts.SetWill(StatusTopic(cfg.BeaconID), "offline", 1, true)

	opts.SetOnConnectHandler(func(cl mqtt.Client) {
		c.setConnected(true)
		logger.Info("mqtt connected", "broker", cfg.MQTTBroker, "port", cfg.MQTTPort)
		cl.Publish(StatusTopic(c.beaconID), 1, true, "online")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	c.client = mqtt.NewClient(opts)
	return c, nil
}

// Connect waits for the initial connection and respects ctx and Disconnect.
func (c *Client) Connect(ctx context.Context) error {
	select {
	case <-c.stopCh:
		return ErrStopped
	default:
	}
	if c.IsConnected() {
		return nil
	}

	token := c.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			// OnConnectHandler runs asynchronously; don't wait for it.
			c.setConnected(true)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopCh:
			return ErrStopped
		default:
		}
	}
}

// PublishTelemetry publishes one broadcast cycle to the beacon's telemetry topic.
func (c *Client) PublishTelemetry(t types.Telemetry) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	topic := TelemetryTopic(c.beaconID)
	t.BeaconID = c.beaconID
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal telemetry: %w", err)
	}

	token := c.client.Publish(topic, 1, false, data)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish telemetry: %w", err)
	}

	c.logger.Debug("published telemetry", "topic", topic, "sequence", t.Sequence)
	return nil
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	connected := c.connected
	c.mu.RUnlock()
	return connected && c.client.IsConnected()
}

// Disconnect is idempotent. After it, Connect returns ErrStopped.
func (c *Client) Disconnect() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		if c.IsConnected() {
			token := c.client.Publish(StatusTopic(c.beaconID), 1, true, "offline")
			token.WaitTimeout(time.Second)
		}
		c.client.Disconnect(250)
		c.setConnected(false)
		c.logger.Info("mqtt disconnected")
	})
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}
