package publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/Checker-Finance/arango-auth/internal/metrics"
)

// RotationEvent announces that a new JWT was issued. It never carries the token.
type RotationEvent struct {
	EventID   uuid.UUID `json:"event_id"`
	Service   string    `json:"service"`
	Username  string    `json:"username"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// msgPublisher is the part of *nats.Conn the Publisher needs.
type msgPublisher interface {
	PublishMsg(m *nats.Msg) error
}

// Publisher emits rotation events on a NATS subject.
type Publisher struct {
	logger  *zap.Logger
	nc      msgPublisher
	subject string
	service string
}

// New creates a Publisher over nc.
func New(logger *zap.Logger, nc *nats.Conn, subject, service string) *Publisher {
	return newPublisher(logger, nc, subject, service)
}

func newPublisher(logger *zap.Logger, nc msgPublisher, subject, service string) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		logger:  logger,
		nc:      nc,
		subject: subject,
		service: service,
	}
}

// PublishRotation serializes evt and publishes it.
func (p *Publisher) PublishRotation(_ context.Context, evt RotationEvent) error {
	if evt.EventID == uuid.Nil {
		evt.EventID = uuid.New()
	}
	evt.Service = p.service

	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	msg := &nats.Msg{
		Subject: p.subject,
		Data:    data,
		Header: nats.Header{
			"event_type":   []string{"arango.jwt_rotated"},
			"event_id":     []string{evt.EventID.String()},
			"service":      []string{p.service},
			"content_type": []string{"application/json"},
		},
	}

	if err := p.nc.PublishMsg(msg); err != nil {
		metrics.IncNATSPublishError(p.subject)
		p.logger.Error("publisher.publish_failed",
			zap.String("subject", p.subject),
			zap.String("user", evt.Username),
			zap.Error(err))
		return err
	}

	p.logger.Debug("publisher.rotation_published",
		zap.String("subject", p.subject),
		zap.String("event_id", evt.EventID.String()))
	return nil
}
