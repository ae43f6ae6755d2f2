// Package notify publishes task lifecycle events to NATS. Publishing is
// best-effort: a failed or absent broker never blocks a queue transition.
package notify

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskd/internal/ledger"
)

// DefaultNamespace prefixes event subjects when none is configured.
const DefaultNamespace = "taskd"

// Publisher emits task events on subjects of the form <namespace>:<event>.
type Publisher struct {
	nc        *nats.Conn
	namespace string
	logger    *zap.Logger
}

// Connect dials NATS with reconnect handling suitable for a long-running
// daemon and returns a Publisher bound to the namespace.
func Connect(url, namespace string, logger *zap.Logger) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}

	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, err
	}

	logger.Info("connected to nats",
		zap.String("url", url),
		zap.String("namespace", namespace))
	return &Publisher{nc: nc, namespace: namespace, logger: logger}, nil
}

// NewPublisher wraps an existing connection, mainly for tests.
func NewPublisher(nc *nats.Conn, namespace string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Publisher{nc: nc, namespace: namespace, logger: logger}
}

// Publish emits the task as JSON on <namespace>:<event>. Errors are
// logged and swallowed so a broker outage cannot fail a transition.
func (p *Publisher) Publish(event string, task *ledger.Task) {
	if p == nil || p.nc == nil {
		return
	}
	subject := p.namespace + ":" + event

	payload, err := json.Marshal(task)
	if err != nil {
		p.logger.Warn("failed to encode task event",
			zap.String("subject", subject), zap.Error(err))
		return
	}
	if err := p.nc.Publish(subject, payload); err != nil {
		p.logger.Debug("failed to publish task event",
			zap.String("subject", subject), zap.Error(err))
		return
	}
	p.logger.Debug("published task event",
		zap.String("subject", subject),
		zap.String("task_id", task.ID))
}

// Close drains the connection.
func (p *Publisher) Close() {
	if p == nil || p.nc == nil {
		return
	}
	if err := p.nc.Drain(); err != nil {
		p.logger.Warn("nats drain failed", zap.Error(err))
	}
}
