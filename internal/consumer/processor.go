// Package consumer reads readiness signals from Kafka and feeds them to the recovery service.
package consumer

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// Reader exposes the minimal kafka.Reader interface needed by the processor.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler receives decoded messages from Kafka.
type Handler interface {
	Handle(context.Context, Message) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, Message) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, msg Message) error { return f(ctx, msg) }

// Chain runs handlers in order and stops at the first error.
func Chain(handlers ...Handler) Handler {
	return HandlerFunc(func(ctx context.Context, msg Message) error {
		for _, h := range handlers {
			if err := h.Handle(ctx, msg); err != nil {
				return err
			}
		}
		return nil
	})
}

// Message is the decoded representation of a Kafka record.
type Message struct {
	Topic         string
	Partition     int
	Offset        int64
	Timestamp     time.Time
	EventType     string
	UserID        string
	SchemaSubject string
	SchemaID      int
	Payload       json.RawMessage
}

type permanentError struct {
	err error
}

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as one that redelivery cannot fix. The processor commits past
// messages whose handler returns a permanent error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

// Option configures optional behaviour for the Processor.
type Option func(*Processor)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger *log.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithTopicEventType sets the event type assumed for records on topic that carry no
// event_type header. Producers outside this system publish plain JSON without headers.
func WithTopicEventType(topic, eventType string) Option {
	return func(p *Processor) {
		p.topicTypes[topic] = eventType
	}
}

// Processor pulls messages from Kafka, decodes them, and dispatches to a Handler.
type Processor struct {
	reader     Reader
	handler    Handler
	logger     *log.Logger
	topicTypes map[string]string
}

// NewProcessor constructs a Processor with the provided reader and handler.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:     reader,
		handler:    handler,
		logger:     log.New(log.Writer(), "[consumer] ", log.LstdFlags|log.Lshortfile),
		topicTypes: make(map[string]string),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run starts a blocking loop that processes Kafka messages until the context is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			p.logger.Printf("fetch error: %v", err)
			continue
		}

		event, decodeErr := p.decode(msg)
		if decodeErr != nil {
			p.logger.Printf("decode error (topic=%s, partition=%d, offset=%d): %v", msg.Topic, msg.Partition, msg.Offset, decodeErr)
			recordDecodeError(msg.Topic)
			p.commit(ctx, msg, "decode failure")
			continue
		}

		if handleErr := p.handler.Handle(ctx, event); handleErr != nil {
			recordHandlerError(event, IsPermanent(handleErr))
			if IsPermanent(handleErr) {
				p.logger.Printf("dropping message (event_type=%s, user=%s, offset=%d): %v", event.EventType, event.UserID, event.Offset, handleErr)
				p.commit(ctx, msg, "permanent failure")
				continue
			}
			p.logger.Printf("handler error (event_type=%s, user=%s): %v", event.EventType, event.UserID, handleErr)
			continue
		}

		if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
			p.logger.Printf("commit error: %v", commitErr)
		} else {
			recordProcessed(event)
		}
	}
}

func (p *Processor) commit(ctx context.Context, msg kafka.Message, reason string) {
	if err := p.reader.CommitMessages(ctx, msg); err != nil {
		p.logger.Printf("commit error after %s: %v", reason, err)
	}
}

func (p *Processor) decode(msg kafka.Message) (Message, error) {
	eventType, ok := headerValue(msg, "event_type")
	if !ok {
		fallback, known := p.topicTypes[msg.Topic]
		if !known {
			return Message{}, errors.New("missing event_type header")
		}
		eventType = []byte(fallback)
	}

	userID, ok := headerValue(msg, "user_id")
	if !ok {
		userID = msg.Key
	}
	schemaSubject, _ := headerValue(msg, "schema_subject")

	schemaID, payload, err := unframe(msg.Value)
	if err != nil {
		return Message{}, err
	}

	return Message{
		Topic:         msg.Topic,
		Partition:     msg.Partition,
		Offset:        msg.Offset,
		Timestamp:     msg.Time,
		EventType:     string(eventType),
		UserID:        string(userID),
		SchemaSubject: string(schemaSubject),
		SchemaID:      schemaID,
		Payload:       payload,
	}, nil
}

// unframe strips the registry wire header (magic byte 0, 4 byte schema id) when present.
// Plain JSON values decode with schema id 0.
func unframe(value []byte) (int, json.RawMessage, error) {
	if len(value) == 0 {
		return 0, nil, errors.New("empty payload")
	}
	if value[0] != 0 {
		if !json.Valid(value) {
			return 0, nil, errors.New("payload is neither framed nor JSON")
		}
		return 0, json.RawMessage(append([]byte(nil), value...)), nil
	}
	if len(value) < 5 {
		return 0, nil, fmt.Errorf("invalid payload length: %d", len(value))
	}
	schemaID := int(binary.BigEndian.Uint32(value[1:5]))
	return schemaID, json.RawMessage(append([]byte(nil), value[5:]...)), nil
}

func headerValue(msg kafka.Message, key string) ([]byte, bool) {
	for _, header := range msg.Headers {
		if header.Key == key {
			return header.Value, true
		}
	}
	return nil, false
}
