// Package nats publica los resultados de cada broadcast en NATS para que
// otros servicios (dashboards, auditoría) puedan consumirlos.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/Akash-Sakala/AgriQNet/internal/broadcast"
)

// DefaultSubject es el subject donde se publican los Outcome.
const DefaultSubject = "agriqnet.pest.broadcast"

type Config struct {
	URL            string
	Name           string
	Subject        string
	ReconnectWait  time.Duration
	MaxReconnects  int
	ConnectTimeout time.Duration
}

// conn es el subconjunto de *nats.Conn que usa Publisher.
type conn interface {
	Publish(subject string, data []byte) error
	Close()
}

// Publisher implementa broadcast.Publisher sobre una conexión NATS.
type Publisher struct {
	conn    conn
	subject string
	log     *zap.Logger
}

// Connect abre la conexión. Falla si el servidor no responde dentro de
// ConnectTimeout; la reconexión posterior la gestiona el cliente NATS.
func Connect(cfg Config, log *zap.Logger) (*Publisher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Name == "" {
		cfg.Name = "agriqnet"
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = 60
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.Timeout(cfg.ConnectTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats: connect %s: %w", cfg.URL, err)
	}
	return newPublisher(nc, cfg.Subject, log), nil
}

func newPublisher(c conn, subject string, log *zap.Logger) *Publisher {
	if subject == "" {
		subject = DefaultSubject
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{conn: c, subject: subject, log: log}
}

// Publish serializa el Outcome en JSON y lo publica.
func (p *Publisher) Publish(ctx context.Context, o broadcast.Outcome) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(event{Outcome: o, Summary: o.Summary()})
	if err != nil {
		return fmt.Errorf("nats: marshal outcome: %w", err)
	}
	if err := p.conn.Publish(p.subject, payload); err != nil {
		return fmt.Errorf("nats: publish %s: %w", p.subject, err)
	}
	p.log.Debug("outcome published", zap.String("subject", p.subject), zap.String("broadcast", o.ID))
	return nil
}

func (p *Publisher) Close() {
	p.conn.Close()
}

type event struct {
	broadcast.Outcome
	Summary broadcast.Summary `json:"summary"`
}
