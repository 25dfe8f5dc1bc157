package broadcast

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"echoclicker/internal/models"
)

const DefaultSubject = "echoclicker.events"

// NATSPublisher publishes every event as JSON on one subject. Publishing is
// buffered by the client library so Broadcast does not wait on the network.
type NATSPublisher struct {
	nc      *nats.Conn
	subject string
	logger  *zap.Logger
}

func NewNATSPublisher(url, subject string, logger *zap.Logger) (*NATSPublisher, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	if subject == "" {
		subject = DefaultSubject
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("nats")

	nc, err := nats.Connect(url,
		nats.Name("echoclicker"),
		nats.Timeout(2*time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, err
	}
	return &NATSPublisher{nc: nc, subject: subject, logger: logger}, nil
}

func (p *NATSPublisher) Broadcast(ev models.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("Failed to encode event", zap.Error(err))
		return
	}
	if err := p.nc.Publish(p.subject, data); err != nil {
		p.logger.Debug("Publish failed", zap.String("event", ev.Name), zap.Error(err))
	}
}

func (p *NATSPublisher) Close() {
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
	}
}
