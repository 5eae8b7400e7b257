package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// ConsumerConfig holds broker connection settings.
type ConsumerConfig struct {
	BrokerURL    string
	Username     string
	Password     string
	ClientID     string
	TopicFilters []string
}

// Consumer subscribes to the broker and feeds every message through the
// pipeline. Each message runs in its own goroutine so a slow store write
// never stalls the paho receive loop; Stop drains in-flight handlers.
type Consumer struct {
	client   mqtt.Client
	pipeline *Pipeline
	logger   *zap.Logger
	filters  []string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewConsumer builds an MQTT consumer around the pipeline.
func NewConsumer(cfg ConsumerConfig, pipeline *Pipeline, logger *zap.Logger) (*Consumer, error) {
	if cfg.BrokerURL == "" {
		return nil, errors.New("ingest: broker url required")
	}
	if pipeline == nil {
		return nil, errors.New("ingest: nil pipeline")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(cfg.TopicFilters) == 0 {
		return nil, errors.New("ingest: no topic filters")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Consumer{
		pipeline: pipeline,
		logger:   logger,
		filters:  cfg.TopicFilters,
		ctx:      ctx,
		cancel:   cancel,
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "cranecloud-ingest"
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(clientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetOrderMatters(false)

	opts.OnConnect = func(client mqtt.Client) {
		logger.Info("connected to broker", zap.String("broker", cfg.BrokerURL))
		c.subscribe(client)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Error("broker connection lost", zap.Error(err))
	}

	c.client = mqtt.NewClient(opts)
	return c, nil
}

// Start connects to the broker. Subscriptions happen in the connect
// callback so they survive reconnects.
func (c *Consumer) Start() error {
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

// Stop unsubscribes, disconnects and waits for in-flight messages to
// finish.
func (c *Consumer) Stop() {
	c.cancel()
	if c.client.IsConnected() {
		if token := c.client.Unsubscribe(c.filters...); token.Wait() && token.Error() != nil {
			c.logger.Warn("unsubscribe failed", zap.Error(token.Error()))
		}
	}
	c.client.Disconnect(250)
	c.wg.Wait()
}

func (c *Consumer) subscribe(client mqtt.Client) {
	for _, filter := range c.filters {
		token := client.Subscribe(filter, 1, c.onMessage)
		if token.Wait() && token.Error() != nil {
			c.logger.Error("subscribe failed",
				zap.String("filter", filter), zap.Error(token.Error()))
			continue
		}
		c.logger.Info("subscribed", zap.String("filter", filter))
	}
}

func (c *Consumer) onMessage(_ mqtt.Client, msg mqtt.Message) {
	topic := msg.Topic()
	payload := make([]byte, len(msg.Payload()))
	copy(payload, msg.Payload())

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.pipeline.Handle(c.ctx, topic, payload); err != nil {
			c.logger.Debug("message not processed",
				zap.String("topic", topic), zap.Error(err))
		}
	}()
}
