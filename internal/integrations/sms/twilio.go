package sms

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"
)

// messageCreator es el subconjunto de la API de Twilio que usamos.
type messageCreator interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

// Twilio envía SMS reales con la API REST de Twilio.
type Twilio struct {
	api  messageCreator
	from string
}

// NewTwilio crea el cliente con las credenciales de la cuenta. timeout acota
// cada petición HTTP al proveedor; conviene que sea menor que el timeout del
// Fallback para que la petición abandonada no siga viva tras el envío simulado.
func NewTwilio(accountSID, authToken, from string, timeout time.Duration) (*Twilio, error) {
	if accountSID == "" || authToken == "" || from == "" {
		return nil, errors.New("sms: faltan credenciales de Twilio")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return &Twilio{api: client.Api, from: from}, nil
}

// httpTimeout deja margen respecto al timeout de envío para que el cliente
// HTTP corte antes de que Fallback declare el envío simulado.
func httpTimeout(sendTimeout time.Duration) time.Duration {
	return sendTimeout * 9 / 10
}

// NewTwilioFallback combina Twilio y Fallback con timeouts coherentes.
func NewTwilioFallback(accountSID, authToken, from string, sendTimeout time.Duration, log *zap.Logger) (*Fallback, error) {
	if sendTimeout <= 0 {
		sendTimeout = defaultSendTimeout
	}
	tw, err := NewTwilio(accountSID, authToken, from, httpTimeout(sendTimeout))
	if err != nil {
		return nil, err
	}
	return NewFallback(tw, sendTimeout, log), nil
}

// Send publica el mensaje. Los errores de la API se devuelven como
// *RejectedError; cualquier otro error es de transporte.
func (t *Twilio) Send(ctx context.Context, to, body string) (string, error) {
	params := &openapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(t.from)
	params.SetBody(body)

	type reply struct {
		msg *openapi.ApiV2010Message
		err error
	}
	// CreateMessage no acepta context; se corre aparte para respetar ctx. Si ctx
	// vence antes, la petición sigue hasta el timeout HTTP del cliente y aún
	// puede entregarse.
	ch := make(chan reply, 1)
	go func() {
		m, err := t.api.CreateMessage(params)
		ch <- reply{m, err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		if r.err != nil {
			var rest *twclient.TwilioRestError
			if errors.As(r.err, &rest) {
				return "", &RejectedError{Code: rest.Code, Status: rest.Status, Message: rest.Message}
			}
			return "", fmt.Errorf("sms: twilio: %w", r.err)
		}
		if r.msg != nil && r.msg.Sid != nil {
			return *r.msg.Sid, nil
		}
		return "", nil
	}
}
