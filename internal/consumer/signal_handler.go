package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"example.com/coach/internal/domain"
	"example.com/coach/internal/events"
	"example.com/coach/internal/recovery"
)

// SignalIngester is the part of the recovery service fed by the consumer.
type SignalIngester interface {
	IngestRecovery(ctx context.Context, in domain.RecoveryInput) (recovery.Result, error)
	IngestSoreness(ctx context.Context, in domain.SorenessInput) (recovery.Result, error)
}

// SignalHandler turns recovery.scored and soreness.answered events into signal updates.
type SignalHandler struct {
	ingester SignalIngester
	logger   *log.Logger
}

// NewSignalHandler constructs a SignalHandler.
func NewSignalHandler(ingester SignalIngester, logger *log.Logger) *SignalHandler {
	if logger == nil {
		logger = log.New(log.Writer(), "[consumer] ", log.LstdFlags|log.Lshortfile)
	}
	return &SignalHandler{ingester: ingester, logger: logger}
}

// Handle decodes msg and forwards it. Malformed or out-of-range payloads are permanent.
func (h *SignalHandler) Handle(ctx context.Context, msg Message) error {
	var result recovery.Result
	switch msg.EventType {
	case events.TypeRecoveryScored:
		var ev events.RecoveryScored
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			return Permanent(fmt.Errorf("decode %s: %w", msg.EventType, err))
		}
		userID, date, err := h.identity(msg, ev.UserID, ev.Date)
		if err != nil {
			return err
		}
		result, err = h.ingester.IngestRecovery(ctx, domain.RecoveryInput{
			UserID: userID, Date: date, RecoveryPct: ev.RecoveryPct, RestingHR: ev.RestingHR, HRV: ev.HRV,
		})
		if err != nil {
			return classify(err)
		}
	case events.TypeSorenessAnswered:
		var ev events.SorenessAnswered
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			return Permanent(fmt.Errorf("decode %s: %w", msg.EventType, err))
		}
		userID, date, err := h.identity(msg, ev.UserID, ev.Date)
		if err != nil {
			return err
		}
		result, err = h.ingester.IngestSoreness(ctx, domain.SorenessInput{
			UserID: userID, Date: date, Soreness: ev.Soreness, PainFlags: ev.PainFlags,
		})
		if err != nil {
			return classify(err)
		}
	default:
		return Permanent(fmt.Errorf("unsupported event_type %q", msg.EventType))
	}

	if result.Plan != nil {
		h.logger.Printf("signal %s applied (user=%s date=%s plan=%s)", msg.EventType, result.Signal.UserID, result.Signal.Date.Format(events.DateLayout), result.Plan.Hash)
	}
	return nil
}

// identity resolves the user and date of an event. The payload user wins over the record
// key, but a conflicting header is rejected.
func (h *SignalHandler) identity(msg Message, payloadUser, rawDate string) (string, time.Time, error) {
	userID := payloadUser
	switch {
	case userID == "":
		userID = msg.UserID
	case msg.UserID != "" && msg.UserID != userID:
		return "", time.Time{}, Permanent(fmt.Errorf("user mismatch: header %q payload %q", msg.UserID, userID))
	}
	date, err := time.Parse(events.DateLayout, rawDate)
	if err != nil {
		return "", time.Time{}, Permanent(fmt.Errorf("parse date %q: %w", rawDate, err))
	}
	return userID, date, nil
}

func classify(err error) error {
	if errors.Is(err, domain.ErrInvalidSignal) {
		return Permanent(err)
	}
	return err
}
