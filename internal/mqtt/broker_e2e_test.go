//go:build e2e

package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"howsair-beacon/internal/config"
	"howsair-beacon/internal/types"
)

func startMosquitto(t *testing.T) (string, int) {
	t.Helper()
	ctx := context.Background()

	req := tc.ContainerRequest{
		Image:        "eclipse-mosquitto:2",
		Cmd:          []string{"mosquitto", "-c", "/mosquitto-no-auth.conf"},
		ExposedPorts: []string{"1883/tcp"},
		WaitingFor:   wait.ForListeningPort("1883/tcp").WithStartupTimeout(30 * time.Second),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start mosquitto container: %v", err)
	}
	t.Cleanup(func() {
		_ = c.Terminate(ctx)
	})

	host, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := c.MappedPort(ctx, "1883/tcp")
	if err != nil {
		t.Fatalf("mapped port: %v", err)
	}
	return host, port.Int()
}

func subscribe(t *testing.T, host string, port int, topic string) <-chan []byte {
	t.Helper()

	opts := paho.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", host, port))
	opts.SetClientID("e2e-subscriber")
	sub := paho.NewClient(opts)
	if tok := sub.Connect(); !tok.WaitTimeout(5*time.Second) || tok.Error() != nil {
		t.Fatalf("subscriber connect: %v", tok.Error())
	}
	t.Cleanup(func() { sub.Disconnect(100) })

	got := make(chan []byte, 8)
	tok := sub.Subscribe(topic, 1, func(_ paho.Client, m paho.Message) {
		got <- append([]byte(nil), m.Payload()...)
	})
	if !tok.WaitTimeout(5*time.Second) || tok.Error() != nil {
		t.Fatalf("subscribe %s: %v", topic, tok.Error())
	}
	return got
}

func TestMirror_PublishesToBroker(t *testing.T) {
	host, port := startMosquitto(t)
	msgs := subscribe(t, host, port, TelemetryTopic("e2e-beacon"))

	client, err := NewClient(config.Config{
		BeaconID:     "e2e-beacon",
		MQTTBroker:   host,
		MQTTPort:     port,
		MQTTClientID: "e2e-beacon",
	}, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Disconnect()

	m := NewMirror(client, "e2e-beacon", 4, nil)
	go m.Run(ctx)
	if err := m.Observe(ctx, sampleRecord(5)); err != nil {
		t.Fatalf("Observe: %v", err)
	}

	select {
	case data := <-msgs:
		var got types.Telemetry
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.Sequence != 5 || got.OzonePPM != 42 || got.BeaconID != "e2e-beacon" {
			t.Errorf("got %+v", got)
		}
	case <-ctx.Done():
		t.Fatal("no telemetry received")
	}
}
