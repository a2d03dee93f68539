// Package subscribers implementa el directorio de suscriptores a alertas de
// plagas: distrito -> conjunto de teléfonos, con altas idempotentes.
package subscribers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Akash-Sakala/AgriQNet/internal/integrations/sms"
	"github.com/Akash-Sakala/AgriQNet/internal/storage"
)

// ErrMissingDistrict se devuelve al suscribir sin distrito.
var ErrMissingDistrict = errors.New("subscribers: distrito requerido")

// KnownDistricts permite avisar de suscripciones a distritos que ninguna zona
// va a alcanzar. Lo satisface *region.Graph.
type KnownDistricts interface {
	Has(district string) bool
}

// Directory es el registro persistente de suscriptores.
type Directory struct {
	store storage.SubscriptionStore
	known KnownDistricts
	log   *zap.Logger
}

// NewDirectory crea el directorio sobre store. known puede ser nil.
func NewDirectory(store storage.SubscriptionStore, known KnownDistricts, log *zap.Logger) *Directory {
	if log == nil {
		log = zap.NewNop()
	}
	return &Directory{store: store, known: known, log: log}
}

// Subscribe registra phone para district. Es idempotente: repetir la misma
// pareja deja el mismo estado. Un error nil equivale a éxito; un fallo del
// store se devuelve envuelto y no altera suscripciones previas.
func (d *Directory) Subscribe(ctx context.Context, district, phone string) error {
	district = strings.TrimSpace(district)
	if district == "" {
		return ErrMissingDistrict
	}
	clean, err := sms.Normalize(phone)
	if err != nil {
		return err
	}
	if d.known != nil && !d.known.Has(district) {
		d.log.Warn("subscription to unknown district will never match a zone",
			zap.String("district", district))
	}
	if err := d.store.AddSubscriber(ctx, district, clean); err != nil {
		d.log.Error("subscription failed", zap.String("district", district), zap.Error(err))
		return fmt.Errorf("subscribers: persist: %w", err)
	}
	d.log.Info("subscribed", zap.String("district", district), zap.String("phone", mask(clean)))
	return nil
}

// SubscribersFor devuelve los teléfonos de district, o vacío si no hay.
// No falla: un error de lectura se registra y se trata como distrito vacío.
func (d *Directory) SubscribersFor(ctx context.Context, district string) []string {
	phones, err := d.store.Subscribers(ctx, district)
	if err != nil {
		d.log.Error("subscriber lookup failed", zap.String("district", district), zap.Error(err))
		return []string{}
	}
	return phones
}

// Counts devuelve el número de suscriptores por distrito.
func (d *Directory) Counts(ctx context.Context) (map[string]int, error) {
	return d.store.Counts(ctx)
}

// mask oculta los dígitos centrales de un teléfono para los logs.
func mask(phone string) string {
	if len(phone) <= 6 {
		return phone
	}
	return phone[:3] + strings.Repeat("*", len(phone)-6) + phone[len(phone)-3:]
}
