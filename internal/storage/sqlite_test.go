package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Akash-Sakala/AgriQNet/internal/processing"
)

// backends devuelve los stores a probar. Postgres y Redis solo si el entorno los provee.
func backends(t *testing.T) map[string]Store {
	t.Helper()

	out := map[string]Store{"memory": NewMemory()}

	s, err := NewSQLite(filepath.Join(t.TempDir(), "test_agriqnet.db"))
	require.NoError(t, err)
	out["sqlite"] = s

	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		pg, err := NewPostgres(dsn)
		require.NoError(t, err)
		out["postgres"] = pg
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		r, err := NewRedis(addr)
		require.NoError(t, err)
		out["redis"] = r
	}

	t.Cleanup(func() {
		for _, s := range out {
			_ = s.Close()
		}
	})
	return out
}

// uniqueDistrict evita colisiones entre ejecuciones contra backends compartidos.
func uniqueDistrict(name string) string {
	return fmt.Sprintf("%s-%d", name, time.Now().UnixNano())
}

func TestSubscribeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			d := uniqueDistrict("Mysuru")
			require.NoError(t, s.AddSubscriber(ctx, d, "+911234567890"))
			require.NoError(t, s.AddSubscriber(ctx, d, "+911234567890"))

			phones, err := s.Subscribers(ctx, d)
			require.NoError(t, err)
			assert.Equal(t, []string{"+911234567890"}, phones)
		})
	}
}

func TestSubscribersUnknownDistrictIsEmpty(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			phones, err := s.Subscribers(ctx, uniqueDistrict("Atlantis"))
			require.NoError(t, err)
			assert.Empty(t, phones)
		})
	}
}

func TestConcurrentSubscribeSameDistrict(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			d := uniqueDistrict("Hassan")

			var wg sync.WaitGroup
			for i := range 20 {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					// 10 teléfonos distintos, cada uno registrado dos veces.
					phone := fmt.Sprintf("+9198000000%02d", i%10)
					assert.NoError(t, s.AddSubscriber(ctx, d, phone))
				}(i)
			}
			wg.Wait()

			phones, err := s.Subscribers(ctx, d)
			require.NoError(t, err)
			assert.Len(t, phones, 10)

			counts, err := s.Counts(ctx)
			require.NoError(t, err)
			assert.Equal(t, 10, counts[d])
		})
	}
}

func TestSaveAndListAlerts(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			now := time.Now().UTC().Truncate(time.Second)
			a := processing.Alert{
				ID:          uniqueDistrict("a1"),
				District:    "Mandya",
				Pest:        "fall armyworm",
				Severity:    processing.SeverityHigh,
				Message:     "armyworm en maíz",
				Extract:     "armyworm",
				Timestamp:   now,
				BroadcastID: "b-42",
			}
			require.NoError(t, s.SaveAlert(ctx, a))

			list, err := s.ListAlerts(ctx, 10)
			require.NoError(t, err)
			require.NotEmpty(t, list)

			var found bool
			for _, it := range list {
				if it.ID == a.ID {
					found = true
					assert.Equal(t, a.Pest, it.Pest)
					assert.Equal(t, "b-42", it.BroadcastID)
					assert.True(t, it.Timestamp.Equal(now), "timestamp %v != %v", it.Timestamp, now)
				}
			}
			assert.True(t, found, "alerta guardada no encontrada")
		})
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open("cassandra", "")
	require.Error(t, err)
}
