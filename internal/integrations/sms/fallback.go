package sms

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

const defaultSendTimeout = 10 * time.Second

// Fallback adapta un Sender al contrato de Channel:
//   - éxito del proveedor: Delivered=true.
//   - rechazo del proveedor (*RejectedError): Delivered=false, sin simulación.
//   - fallo de red, timeout o proveedor caído: envío simulado, Delivered=true y Simulated=true.
//
// Un envío simulado por timeout no garantiza que el SMS no salga: la petición
// al proveedor puede completarse después, incluso cuando ya empezó el nivel
// siguiente de un broadcast. NewTwilioFallback acota ese margen dando al
// cliente HTTP un timeout menor que el de envío.
type Fallback struct {
	sender  Sender
	timeout time.Duration
	log     *zap.Logger
}

// NewFallback envuelve sender. timeout acota cada envío individual.
func NewFallback(sender Sender, timeout time.Duration, log *zap.Logger) *Fallback {
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Fallback{sender: sender, timeout: timeout, log: log}
}

func (f *Fallback) Send(ctx context.Context, phone, text string) Result {
	to, err := Normalize(phone)
	if err != nil {
		return Result{Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	sid, err := f.sender.Send(ctx, to, text)
	if err == nil {
		return Result{Delivered: true, SID: sid}
	}

	var rej *RejectedError
	if errors.As(err, &rej) {
		f.log.Warn("sms rejected by provider", zap.String("to", to), zap.Error(err))
		return Result{Err: err}
	}

	f.log.Warn("sms provider unavailable, falling back to simulation", zap.String("to", to), zap.Error(err))
	return Result{Delivered: true, Simulated: true, Err: err}
}
