package sms

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Simulator es el canal usado cuando no hay proveedor configurado.
// Cada envío cuenta como entregado y simulado.
type Simulator struct {
	log *zap.Logger
}

func NewSimulator(log *zap.Logger) *Simulator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Simulator{log: log}
}

func (s *Simulator) Send(_ context.Context, phone, text string) Result {
	s.log.Info("simulated sms", zap.String("to", phone), zap.String("body", text))
	return Result{Delivered: true, Simulated: true}
}

// Call es un envío registrado por Recorder.
type Call struct {
	Phone string
	Text  string
	At    time.Time
}

// Recorder es un Channel instrumentado: registra cada llamada con su marca de
// tiempo y responde con Respond (por defecto, entrega real).
type Recorder struct {
	Respond func(phone, text string) Result
	Delay   time.Duration

	mu    sync.Mutex
	calls []Call
}

func (r *Recorder) Send(ctx context.Context, phone, text string) Result {
	if r.Delay > 0 {
		select {
		case <-time.After(r.Delay):
		case <-ctx.Done():
			return Result{Delivered: true, Simulated: true, Err: ctx.Err()}
		}
	}
	r.mu.Lock()
	r.calls = append(r.calls, Call{Phone: phone, Text: text, At: time.Now()})
	r.mu.Unlock()

	if r.Respond != nil {
		return r.Respond(phone, text)
	}
	return Result{Delivered: true}
}

// Calls devuelve una copia de las llamadas registradas, en orden de llegada.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}
