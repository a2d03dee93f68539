package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/Akash-Sakala/AgriQNet/internal/processing"
)

// SubscriptionStore persiste el directorio distrito -> conjunto de teléfonos.
// AddSubscriber es idempotente y atómico por fila: dos altas concurrentes del
// mismo par dejan un único registro.
type SubscriptionStore interface {
	AddSubscriber(ctx context.Context, district, phone string) error
	Subscribers(ctx context.Context, district string) ([]string, error)
	Counts(ctx context.Context) (map[string]int, error)
}

// Store es la interfaz usada por el servidor: suscripciones más historial de alertas.
type Store interface {
	SubscriptionStore
	SaveAlert(ctx context.Context, a processing.Alert) error
	ListAlerts(ctx context.Context, limit int) ([]processing.Alert, error)
	Close() error
}

// Open abre el backend indicado por kind: "sqlite", "postgres", "redis" o "memory".
// dsn es la ruta del archivo, la URL de conexión o la dirección de Redis según el caso.
func Open(kind, dsn string) (Store, error) {
	switch strings.ToLower(kind) {
	case "", "sqlite":
		return NewSQLite(dsn)
	case "postgres":
		return NewPostgres(dsn)
	case "redis":
		s, err := NewRedis(dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("storage: backend desconocido %q", kind)
	}
}
