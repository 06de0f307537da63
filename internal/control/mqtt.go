package control

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/e7canasta/stream-playout/internal/config"
)

// Connect establishes a connection to the MQTT broker with automatic
// reconnection enabled.
func Connect(cfg config.MQTTConfig) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", cfg.Broker))
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		slog.Info("control: mqtt connection established",
			"broker", cfg.Broker,
			"client_id", cfg.ClientID)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		slog.Warn("control: mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", cfg.Broker)
	}

	client := mqtt.NewClient(opts)

	slog.Info("control: connecting to mqtt broker", "broker", cfg.Broker)

	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return nil, fmt.Errorf("control: mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("control: mqtt connection failed: %w", err)
	}

	return client, nil
}

// Handler receives commands on the control topic, runs them through the
// Router and publishes each Response to <topic>/ack.
type Handler struct {
	client mqtt.Client
	topic  string
	qos    byte
	router *Router

	commands chan Command
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewHandler creates a control plane handler. It does not subscribe yet.
func NewHandler(client mqtt.Client, topic string, qos byte, router *Router) *Handler {
	return &Handler{
		client:   client,
		topic:    topic,
		qos:      qos,
		router:   router,
		commands: make(chan Command, 10),
		done:     make(chan struct{}),
	}
}

// AckTopic returns the topic acknowledgements are published to.
func (h *Handler) AckTopic() string {
	return h.topic + "/ack"
}

// Start subscribes to the control topic and processes commands until ctx is
// done or Stop is called.
func (h *Handler) Start(ctx context.Context) error {
	slog.Info("control: subscribing to control plane", "topic", h.topic, "qos", h.qos)

	token := h.client.Subscribe(h.topic, h.qos, h.messageHandler)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("control: subscription timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("control: subscription failed: %w", err)
	}

	h.wg.Add(1)
	go h.processCommands(ctx)

	slog.Info("control: control plane handler started")
	return nil
}

// Stop unsubscribes and waits for the command loop to exit. Idempotent.
func (h *Handler) Stop() error {
	h.stopOnce.Do(func() {
		if h.client != nil && h.client.IsConnected() {
			token := h.client.Unsubscribe(h.topic)
			token.WaitTimeout(2 * time.Second)
		}

		close(h.done)
		h.wg.Wait()

		slog.Info("control: control plane handler stopped")
	})
	return nil
}

// messageHandler is called by paho for every control message.
func (h *Handler) messageHandler(client mqtt.Client, msg mqtt.Message) {
	var cmd Command
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		slog.Error("control: failed to parse control command", "error", err)
		h.sendResponse(Response{
			CommandAck: "unknown",
			Status:     StatusError,
			Error:      "invalid JSON",
			Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		})
		return
	}

	slog.Info("control: command received", "command", cmd.Command)

	select {
	case <-h.done:
		slog.Warn("control: command received after stop, dropping", "command", cmd.Command)
		return
	default:
	}

	select {
	case h.commands <- cmd:
	default:
		slog.Warn("control: command queue full, dropping command", "command", cmd.Command)
	}
}

func (h *Handler) processCommands(ctx context.Context) {
	defer h.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case cmd := <-h.commands:
			h.sendResponse(h.router.Dispatch(cmd))
		}
	}
}

func (h *Handler) sendResponse(resp Response) {
	payload, err := json.Marshal(resp)
	if err != nil {
		slog.Error("control: failed to marshal response", "error", err)
		return
	}

	token := h.client.Publish(h.AckTopic(), h.qos, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		slog.Error("control: response publish timeout")
		return
	}
	if err := token.Error(); err != nil {
		slog.Error("control: failed to publish response", "error", err)
		return
	}

	slog.Debug("control: response sent", "command_ack", resp.CommandAck, "status", resp.Status)
}
