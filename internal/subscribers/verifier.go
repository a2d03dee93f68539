package subscribers

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Akash-Sakala/AgriQNet/internal/integrations/sms"
)

const (
	otpPrefix   = "AgriQNet Pest Alerts Subscription Service"
	maxAttempts = 5
)

var (
	ErrNoPendingVerification = errors.New("subscribers: no hay verificación pendiente")
	ErrInvalidCode           = errors.New("subscribers: código inválido")
	ErrCodeNotSent           = errors.New("subscribers: no se pudo enviar el código")
)

// Pending describe una verificación en curso. DemoCode solo se rellena cuando
// el envío fue simulado, para que la UI pueda mostrarlo (modo demo).
type Pending struct {
	Phone     string    `json:"phone"`
	District  string    `json:"district"`
	ExpiresAt time.Time `json:"expiresAt"`
	Simulated bool      `json:"simulated"`
	DemoCode  string    `json:"demoCode,omitempty"`
}

type pendingEntry struct {
	Pending
	code     string
	attempts int
}

// Verifier implementa el alta con código OTP por SMS antes de suscribir.
type Verifier struct {
	dir *Directory
	ch  sms.Channel
	ttl time.Duration
	log *zap.Logger

	now     func() time.Time
	newCode func() (string, error)

	mu      sync.Mutex
	pending map[string]*pendingEntry // teléfono normalizado -> verificación
}

func NewVerifier(dir *Directory, ch sms.Channel, ttl time.Duration, log *zap.Logger) *Verifier {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Verifier{
		dir:     dir,
		ch:      ch,
		ttl:     ttl,
		log:     log,
		now:     time.Now,
		newCode: sixDigitCode,
		pending: map[string]*pendingEntry{},
	}
}

// Start genera un código y lo envía a phone. Una nueva llamada para el mismo
// teléfono reemplaza la verificación anterior. Cada llamada descarta además las
// verificaciones caducadas de otros teléfonos.
func (v *Verifier) Start(ctx context.Context, district, phone string) (Pending, error) {
	district = strings.TrimSpace(district)
	if district == "" {
		return Pending{}, ErrMissingDistrict
	}
	clean, err := sms.Normalize(phone)
	if err != nil {
		return Pending{}, err
	}
	code, err := v.newCode()
	if err != nil {
		return Pending{}, fmt.Errorf("subscribers: generate code: %w", err)
	}

	res := v.ch.Send(ctx, clean, fmt.Sprintf("%s. Your code is: %s", otpPrefix, code))
	if !res.Delivered {
		v.log.Warn("otp not sent", zap.String("phone", mask(clean)), zap.Error(res.Err))
		return Pending{}, fmt.Errorf("%w: %v", ErrCodeNotSent, res.Err)
	}

	p := Pending{
		Phone:     clean,
		District:  district,
		ExpiresAt: v.now().Add(v.ttl),
		Simulated: res.Simulated,
	}
	if res.Simulated {
		p.DemoCode = code
	}

	v.mu.Lock()
	v.pruneLocked()
	v.pending[clean] = &pendingEntry{Pending: p, code: code}
	v.mu.Unlock()
	return p, nil
}

// pruneLocked descarta las verificaciones caducadas. Requiere v.mu.
func (v *Verifier) pruneLocked() {
	now := v.now()
	for phone, e := range v.pending {
		if now.After(e.ExpiresAt) {
			delete(v.pending, phone)
		}
	}
}

// Confirm valida code y, si coincide, suscribe el teléfono al distrito pendiente.
func (v *Verifier) Confirm(ctx context.Context, phone, code string) (string, error) {
	clean, err := sms.Normalize(phone)
	if err != nil {
		return "", err
	}

	v.mu.Lock()
	e, ok := v.pending[clean]
	if !ok || v.now().After(e.ExpiresAt) {
		delete(v.pending, clean)
		v.mu.Unlock()
		return "", ErrNoPendingVerification
	}
	if subtle.ConstantTimeCompare([]byte(e.code), []byte(strings.TrimSpace(code))) != 1 {
		e.attempts++
		if e.attempts >= maxAttempts {
			delete(v.pending, clean)
		}
		v.mu.Unlock()
		return "", ErrInvalidCode
	}
	delete(v.pending, clean)
	v.mu.Unlock()

	if err := v.dir.Subscribe(ctx, e.District, clean); err != nil {
		return "", err
	}
	return e.District, nil
}

func sixDigitCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
