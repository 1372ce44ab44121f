package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// NATS publishes JSON events on "<prefix>.<type>" subjects.
type NATS struct {
	nc     *nats.Conn
	prefix string
}

func ConnectNATS(url, prefix string, log *logrus.Logger) (*NATS, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	nc, err := nats.Connect(url,
		nats.Name("sandwich-forager"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Warn("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.WithField("url", c.ConnectedUrl()).Info("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &NATS{nc: nc, prefix: strings.Trim(prefix, ".")}, nil
}

func (n *NATS) Subject(t Type) string {
	if n.prefix == "" {
		return string(t)
	}
	return n.prefix + "." + string(t)
}

// Publish checks ctx before publishing; nats.Conn.Publish itself does not
// block on the server.
func (n *NATS) Publish(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before publish: %w", err)
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return n.nc.Publish(n.Subject(e.Type), data)
}

// Close flushes pending messages and closes the connection.
func (n *NATS) Close() error {
	return n.nc.Drain()
}
