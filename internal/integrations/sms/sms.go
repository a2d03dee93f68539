package sms

// Paquete sms: canal de notificación hacia los suscriptores.
// El núcleo depende solo de Channel; el proveedor concreto (Twilio) queda
// detrás de Sender para poder sustituirlo o simularlo.

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPhone indica un número que no cumple el formato E.164.
var ErrInvalidPhone = errors.New("sms: número de teléfono inválido")

// Result es el resultado etiquetado de un envío. Nunca se expresa como error
// para que quien llama no pueda ignorar el modo simulado.
type Result struct {
	Delivered bool
	Simulated bool
	SID       string
	Err       error // causa informativa; no implica Delivered=false
}

// Channel envía un único mensaje a un único número. Send siempre resuelve:
// ante una caída del proveedor puede sustituir el envío por uno simulado,
// marcándolo con Simulated=true.
type Channel interface {
	Send(ctx context.Context, phone, text string) Result
}

// Sender representa un cliente capaz de enviar SMS reales.
type Sender interface {
	Send(ctx context.Context, to, body string) (sid string, err error)
}

// RejectedError es un rechazo explícito del proveedor (número no verificado,
// destino bloqueado...). A diferencia de un fallo de red, no se simula.
type RejectedError struct {
	Code    int
	Status  int
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("sms: rechazado por el proveedor (code=%d status=%d): %s", e.Code, e.Status, e.Message)
}

// Normalize deja solo '+' y dígitos y exige el formato E.164 (+ y 8 a 15 dígitos).
func Normalize(phone string) (string, error) {
	var b strings.Builder
	for _, r := range phone {
		if r == '+' || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	clean := b.String()
	if !strings.HasPrefix(clean, "+") || strings.Count(clean, "+") != 1 {
		return "", fmt.Errorf("%w: %q", ErrInvalidPhone, phone)
	}
	if n := len(clean) - 1; n < 8 || n > 15 {
		return "", fmt.Errorf("%w: %q", ErrInvalidPhone, phone)
	}
	return clean, nil
}
