package server

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Akash-Sakala/AgriQNet/internal/broadcast"
	"github.com/Akash-Sakala/AgriQNet/internal/metrics"
	"github.com/Akash-Sakala/AgriQNet/internal/processing"
	"github.com/Akash-Sakala/AgriQNet/internal/storage"
)

// Colores de estado por distrito, de mayor a menor gravedad.
const (
	StatusRed    = "red"
	StatusOrange = "orange"
	StatusYellow = "yellow"
	StatusGreen  = "green"
)

var statusRank = map[string]int{StatusGreen: 0, StatusYellow: 1, StatusOrange: 2, StatusRed: 3}

// Trigger dispara un broadcast; lo satisface (*broadcast.Broadcaster).Broadcast.
type Trigger func(ctx context.Context, district, pest string) (broadcast.Outcome, error)

type StateOptions struct {
	Store     storage.Store // nil para solo memoria
	Districts []string
	// HistoryLimit acota alertas y broadcasts guardados en memoria.
	HistoryLimit int
	Metrics      *metrics.Collector
	Log          *zap.Logger
}

// State mantiene el estado en memoria de alertas, broadcasts recientes y
// color por distrito.
type State struct {
	mu       sync.RWMutex
	alerts   []processing.Alert
	outcomes []broadcast.Outcome
	status   map[string]string // distrito -> color
	limit    int

	store   storage.Store
	metrics *metrics.Collector
	log     *zap.Logger
	trigger Trigger
}

func NewState(opts StateOptions) *State {
	s := &State{
		alerts:  make([]processing.Alert, 0, 64),
		status:  make(map[string]string, len(opts.Districts)),
		limit:   opts.HistoryLimit,
		store:   opts.Store,
		metrics: opts.Metrics,
		log:     opts.Log,
	}
	if s.limit <= 0 {
		s.limit = 100
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	for _, d := range opts.Districts {
		s.status[d] = StatusGreen
	}
	return s
}

// SetTrigger activa el broadcast automático para alertas accionables.
func (s *State) SetTrigger(t Trigger) {
	s.mu.Lock()
	s.trigger = t
	s.mu.Unlock()
}

// HandleAlert es el callback del Processor. Registra la alerta, dispara el
// broadcast si la alerta lo justifica y la persiste una sola vez, ya enlazada
// con el broadcast.
func (s *State) HandleAlert(a processing.Alert) {
	if s.metrics != nil {
		s.metrics.Reports.WithLabelValues(a.Severity).Inc()
	}

	s.mu.RLock()
	trigger := s.trigger
	s.mu.RUnlock()

	ctx := context.Background()
	if trigger != nil && a.Actionable() {
		out, err := trigger(ctx, a.District, a.Pest)
		if err != nil {
			s.log.Warn("auto broadcast rejected", zap.String("alert", a.ID), zap.Error(err))
		} else {
			a.BroadcastID = out.ID
			s.RecordOutcome(out)
		}
	}

	s.mu.Lock()
	s.alerts = append(s.alerts, a)
	if len(s.alerts) > s.limit {
		s.alerts = s.alerts[len(s.alerts)-s.limit:]
	}
	s.mu.Unlock()

	// Persistir de forma síncrona para garantizar durabilidad.
	if s.store != nil {
		if err := s.store.SaveAlert(ctx, a); err != nil {
			s.log.Warn("failed to persist alert", zap.String("alert", a.ID), zap.Error(err))
		}
	}
}

// RecordOutcome guarda un broadcast y escala el color de los distritos
// alcanzados. Un distrito nunca baja de color hasta Reset.
func (s *State) RecordOutcome(o broadcast.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.outcomes = append(s.outcomes, o)
	if len(s.outcomes) > s.limit {
		s.outcomes = s.outcomes[len(s.outcomes)-s.limit:]
	}
	s.escalate(o.Zones.Red, StatusRed)
	s.escalate(o.Zones.Orange, StatusOrange)
	s.escalate(o.Zones.Yellow, StatusYellow)
}

func (s *State) escalate(districts []string, color string) {
	for _, d := range districts {
		if statusRank[color] > statusRank[s.status[d]] {
			s.status[d] = color
		}
	}
}

// Outcomes devuelve los broadcasts recientes, el más nuevo primero.
func (s *State) Outcomes() []broadcast.Outcome {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]broadcast.Outcome, 0, len(s.outcomes))
	for i := len(s.outcomes) - 1; i >= 0; i-- {
		out = append(out, s.outcomes[i])
	}
	return out
}

// ListAlerts retorna las alertas; si hay store, intenta leer desde la DB.
func (s *State) ListAlerts(ctx context.Context) []processing.Alert {
	if s.store != nil {
		list, err := s.store.ListAlerts(ctx, s.limit)
		if err == nil {
			return list
		}
		s.log.Warn("failed to read alerts from store, falling back to memory", zap.Error(err))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]processing.Alert, len(s.alerts))
	copy(out, s.alerts)
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

// Status retorna el mapa de color por distrito.
func (s *State) Status() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.status))
	for k, v := range s.status {
		out[k] = v
	}
	return out
}

// Reset devuelve todos los distritos a verde.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.status {
		s.status[k] = StatusGreen
	}
}

// Close cierra el store si existe.
func (s *State) Close() error {
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}

func (s *State) lastBroadcastAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.outcomes) == 0 {
		return time.Time{}
	}
	return s.outcomes[len(s.outcomes)-1].FinishedAt
}
