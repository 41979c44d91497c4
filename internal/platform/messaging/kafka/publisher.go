package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
)

// Message is one queued billing notification or operator alert.
type Message struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Subject   string                 `json:"subject"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Publisher publishes billing messages to Kafka
type Publisher struct {
	producer sarama.AsyncProducer
	errors   chan error
}

// NewPublisher creates a new Kafka publisher
func NewPublisher(brokers []string) (*Publisher, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 5
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Version = sarama.V3_3_1_0

	producer, err := sarama.NewAsyncProducer(brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	p := &Publisher{
		producer: producer,
		errors:   make(chan error, 100),
	}

	go p.handleErrors()
	go p.handleSuccesses()

	return p, nil
}

// Publish enqueues a message on the topic, keyed by subject so messages
// for the same aggregate stay ordered.
func (p *Publisher) Publish(_ context.Context, topic string, msg *Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to serialize message: %w", err)
	}

	p.producer.Input() <- &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(msg.Subject),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("messageType"), Value: []byte(msg.Type)},
		},
		Timestamp: msg.Timestamp,
	}

	return nil
}

// Errors exposes asynchronous produce failures.
func (p *Publisher) Errors() <-chan error {
	return p.errors
}

// Close shuts down the producer.
func (p *Publisher) Close() error {
	return p.producer.Close()
}

func (p *Publisher) handleErrors() {
	for err := range p.producer.Errors() {
		select {
		case p.errors <- err:
		default:
		}
	}
}

func (p *Publisher) handleSuccesses() {
	for range p.producer.Successes() {
	}
}
