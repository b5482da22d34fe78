package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/KarmveerSingh18/prototype-4/internal/models"
)

// DefaultSubject is the subject prefix events are published under.
const DefaultSubject = "shol.events"

// NATSSink publishes each event as JSON to "<subject>.<kind>".
type NATSSink struct {
	nc      *nats.Conn
	subject string
}

// NewNATSSink connects to url. Connection loss is tolerated: the client
// reconnects in the background and buffers publishes meanwhile.
func NewNATSSink(url, subject string, logger *zap.Logger) (*NATSSink, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	nc, err := nats.Connect(url,
		nats.Name("shol"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSSink{nc: nc, subject: subject}, nil
}

// Name identifies the sink in logs.
func (s *NATSSink) Name() string { return "nats" }

// Append publishes e. Delivery is fire-and-forget.
func (s *NATSSink) Append(_ context.Context, e models.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	return s.nc.Publish(s.subject+"."+e.Kind, data)
}

// Close flushes pending messages and closes the connection.
func (s *NATSSink) Close() error {
	if s.nc == nil {
		return nil
	}
	err := s.nc.Drain()
	if err != nil {
		s.nc.Close()
	}
	return err
}
