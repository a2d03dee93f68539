package processing

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrClosed se devuelve al enviar reportes a un procesador cerrado.
var ErrClosed = errors.New("processing: processor closed")

// Processor coordina el procesamiento concurrente de reportes de campo
// usando goroutines y un canal compartido.
type Processor struct {
	inCh    chan Report
	wg      sync.WaitGroup
	onAlert func(Alert) // callback para notificar alertas detectadas
	log     *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// NewProcessor crea un procesador con una cola de tamaño queueSize.
func NewProcessor(queueSize int, onAlert func(Alert), log *zap.Logger) *Processor {
	if queueSize <= 0 {
		queueSize = 64
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Processor{
		inCh:    make(chan Report, queueSize),
		onAlert: onAlert,
		log:     log,
	}
}

// StartWorkers inicia n workers que consumen del canal y procesan reportes.
func (p *Processor) StartWorkers(n int) {
	if n <= 0 {
		n = 1
	}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func(workerID int) {
			defer p.wg.Done()
			for r := range p.inCh {
				alert := Analyze(r)
				p.log.Debug("report processed",
					zap.Int("worker", workerID),
					zap.String("district", alert.District),
					zap.String("pest", alert.Pest),
					zap.String("severity", alert.Severity))
				if p.onAlert != nil {
					p.onAlert(alert)
				}
			}
		}(i)
	}
}

// Submit encola un reporte. Bloquea si la cola está llena hasta que ctx expire.
func (p *Processor) Submit(ctx context.Context, r Report) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.inCh <- r:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cierra el canal y espera a que terminen los workers.
func (p *Processor) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.inCh)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// Analyze convierte un reporte en alerta. La plaga nombrada por un operador
// verificado se respeta y es accionable. En un reporte anónimo manda lo que
// se detecta en el texto; si el texto no revela nada, la plaga nombrada queda
// registrada con severidad media, pendiente de revisión.
func Analyze(r Report) Alert {
	pest, sev, extract := detect(r.Text)
	if named := strings.TrimSpace(r.Pest); named != "" {
		switch {
		case r.Verified:
			pest = named
			if _, s, _ := detect(named); s != "" && s != SeverityLow {
				sev = s
			} else {
				sev = SeverityHigh
			}
		case pest == "":
			pest = named
			sev = SeverityMedium
		}
	}
	if sev == "" {
		sev = SeverityLow
	}
	ts := r.ReceivedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return Alert{
		ID:        uuid.NewString(),
		District:  strings.TrimSpace(r.District),
		Pest:      pest,
		Severity:  sev,
		Message:   r.Text,
		Extract:   extract,
		Timestamp: ts,
	}
}
