package writer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	kafka "github.com/segmentio/kafka-go"

	appconfig "femasflow/config"
	"femasflow/internal/channel"
	"femasflow/internal/models"
	"femasflow/logger"
)

// Event is the JSON envelope published to Kafka. Payload holds the
// domain object; Type routes it on the consumer side.
type Event struct {
	Type      string      `json:"type"`
	Gateway   string      `json:"gateway"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// KafkaWriter drains the gateway's event channels and publishes each
// event as a JSON message keyed by symbol.
type KafkaWriter struct {
	config  *appconfig.Config
	events  *channel.Events
	writer  *kafka.Writer
	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.Mutex
	running bool
	log     *logger.Log
}

// NewKafkaWriter validates the broker configuration and builds the
// writer; nothing is published until Start.
func NewKafkaWriter(cfg *appconfig.Config, events *channel.Events) (*KafkaWriter, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	kw := &KafkaWriter{
		config: cfg,
		events: events,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Kafka.Brokers...),
			Topic:        cfg.Kafka.Topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: cfg.Kafka.BatchTimeout(),
		},
		wg:  &sync.WaitGroup{},
		log: logger.GetLogger(),
	}
	kw.log.WithComponent("kafka_writer").WithFields(logger.Fields{
		"brokers": cfg.Kafka.Brokers,
		"topic":   cfg.Kafka.Topic,
	}).Debug("kafka writer initialized")
	return kw, nil
}

// Start launches one pump per event channel.
func (kw *KafkaWriter) Start(ctx context.Context) error {
	kw.mu.Lock()
	if kw.running {
		kw.mu.Unlock()
		return fmt.Errorf("kafka writer already running")
	}
	kw.running = true
	kw.ctx = ctx
	kw.mu.Unlock()

	kw.log.WithComponent("kafka_writer").Debug("starting kafka writer")

	kw.wg.Add(5)
	go kw.pumpOrders()
	go kw.pumpTrades()
	go kw.pumpPositions()
	go kw.pumpAccounts()
	go kw.pumpContracts()

	return nil
}

// PublishTick publishes one tick. Ticks are fanned out by the host
// because the recorder wants them too; the other event kinds are
// consumed here directly.
func (kw *KafkaWriter) PublishTick(tick models.TickData) {
	kw.publish("tick", tick.Symbol, tick)
}

func (kw *KafkaWriter) pumpOrders() {
	defer kw.wg.Done()
	for {
		select {
		case <-kw.ctx.Done():
			return
		case order, ok := <-kw.events.Orders:
			if !ok {
				return
			}
			kw.publish("order", order.Symbol, order)
		}
	}
}

func (kw *KafkaWriter) pumpTrades() {
	defer kw.wg.Done()
	for {
		select {
		case <-kw.ctx.Done():
			return
		case trade, ok := <-kw.events.Trades:
			if !ok {
				return
			}
			kw.publish("trade", trade.Symbol, trade)
		}
	}
}

func (kw *KafkaWriter) pumpPositions() {
	defer kw.wg.Done()
	for {
		select {
		case <-kw.ctx.Done():
			return
		case position, ok := <-kw.events.Positions:
			if !ok {
				return
			}
			kw.publish("position", position.Symbol, position)
		}
	}
}

func (kw *KafkaWriter) pumpAccounts() {
	defer kw.wg.Done()
	for {
		select {
		case <-kw.ctx.Done():
			return
		case account, ok := <-kw.events.Accounts:
			if !ok {
				return
			}
			kw.publish("account", account.AccountID, account)
		}
	}
}

func (kw *KafkaWriter) pumpContracts() {
	defer kw.wg.Done()
	for {
		select {
		case <-kw.ctx.Done():
			return
		case contract, ok := <-kw.events.Contracts:
			if !ok {
				return
			}
			kw.publish("contract", contract.Symbol, contract)
		}
	}
}

func (kw *KafkaWriter) publish(eventType, key string, payload interface{}) {
	data, err := json.Marshal(Event{
		Type:      eventType,
		Gateway:   kw.config.Femasflow.Name,
		Timestamp: time.Now(),
		Payload:   payload,
	})
	if err != nil {
		kw.log.WithComponent("kafka_writer").WithError(err).Warn("failed to marshal event")
		return
	}
	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
	}

	kw.mu.Lock()
	ctx := kw.ctx
	kw.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	if err := kw.writer.WriteMessages(ctx, msg); err != nil {
		kw.log.WithComponent("kafka_writer").WithError(err).Warn("failed to write message")
	}
}

// Stop closes the underlying writer and waits for the pumps to drain.
func (kw *KafkaWriter) Stop() {
	kw.mu.Lock()
	kw.running = false
	kw.mu.Unlock()

	kw.log.WithComponent("kafka_writer").Debug("stopping kafka writer")
	kw.writer.Close()
	kw.wg.Wait()
	kw.log.WithComponent("kafka_writer").Debug("kafka writer stopped")
}
