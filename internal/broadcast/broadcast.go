// Package broadcast orquesta el aviso de un brote de plaga: calcula las zonas
// de riesgo alrededor del epicentro y envía un SMS por suscriptor, nivel a
// nivel, en orden Red -> Orange -> Yellow.
package broadcast

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Akash-Sakala/AgriQNet/internal/integrations/sms"
	"github.com/Akash-Sakala/AgriQNet/internal/metrics"
	"github.com/Akash-Sakala/AgriQNet/internal/zones"
)

var (
	ErrMissingDistrict = errors.New("broadcast: distrito epicentro requerido")
	ErrMissingPest     = errors.New("broadcast: plaga requerida")
)

// Directory resuelve los suscriptores de un distrito. Nunca falla.
type Directory interface {
	SubscribersFor(ctx context.Context, district string) []string
}

// Publisher recibe cada Outcome completado (p. ej. NATS). Sus errores no
// afectan al broadcast.
type Publisher interface {
	Publish(ctx context.Context, o Outcome) error
}

// Options agrupa dependencias opcionales.
type Options struct {
	Log       *zap.Logger
	Metrics   *metrics.Collector
	Publisher Publisher
	// TierConcurrency acota los envíos simultáneos dentro de un nivel.
	// 1 (o menos) envía de forma secuencial.
	TierConcurrency int
}

// Broadcaster ejecuta ciclos completos de notificación.
type Broadcaster struct {
	graph zones.Neighborer
	dir   Directory
	ch    sms.Channel

	log         *zap.Logger
	metrics     *metrics.Collector
	pub         Publisher
	concurrency int
	now         func() time.Time
}

func New(graph zones.Neighborer, dir Directory, ch sms.Channel, opts Options) *Broadcaster {
	b := &Broadcaster{
		graph:       graph,
		dir:         dir,
		ch:          ch,
		log:         opts.Log,
		metrics:     opts.Metrics,
		pub:         opts.Publisher,
		concurrency: opts.TierConcurrency,
		now:         time.Now,
	}
	if b.log == nil {
		b.log = zap.NewNop()
	}
	if b.concurrency < 1 {
		b.concurrency = 1
	}
	return b
}

// Broadcast avisa a los suscriptores de las tres zonas alrededor de epicenter.
// Solo falla por precondición (distrito o plaga vacíos); en cualquier otro caso
// devuelve un Outcome completo, aunque haya envíos fallidos. Una vez iniciado
// corre hasta el final aunque se cancele ctx: los valores de ctx se conservan
// pero su cancelación no llega a la lectura del directorio ni a los envíos.
func (b *Broadcaster) Broadcast(ctx context.Context, epicenter, pest string) (Outcome, error) {
	epicenter = strings.TrimSpace(epicenter)
	pest = strings.TrimSpace(pest)
	switch {
	case epicenter == "":
		b.countBroadcast("rejected")
		return Outcome{}, ErrMissingDistrict
	case pest == "":
		b.countBroadcast("rejected")
		return Outcome{}, ErrMissingPest
	}

	ctx = context.WithoutCancel(ctx)

	z := zones.Compute(b.graph, epicenter)
	out := Outcome{
		ID:        uuid.NewString(),
		Epicenter: epicenter,
		Pest:      pest,
		Zones:     z,
		StartedAt: b.now(),
	}
	log := b.log.With(zap.String("broadcast", out.ID), zap.String("epicenter", epicenter), zap.String("pest", pest))
	log.Info("broadcast started",
		zap.Int("orange_districts", len(z.Orange)),
		zap.Int("yellow_districts", len(z.Yellow)))

	// Cada nivel termina por completo antes de empezar el siguiente.
	for _, tier := range zones.Tiers {
		to := b.sendTier(ctx, tier, z.Districts(tier), Message(tier, epicenter, pest))
		out.setTier(tier, to)
		if to.Simulated > 0 {
			out.Simulated = true
		}
		log.Info("tier completed",
			zap.Stringer("tier", tier),
			zap.Int("recipients", to.Recipients),
			zap.Int("delivered", to.Delivered),
			zap.Int("simulated", to.Simulated))
	}

	out.FinishedAt = b.now()
	b.countBroadcast("completed")
	if b.metrics != nil {
		b.metrics.Duration.Observe(out.FinishedAt.Sub(out.StartedAt).Seconds())
	}
	if out.Simulated {
		log.Warn("broadcast used simulated delivery; verify through another channel")
	}
	if b.pub != nil {
		if err := b.pub.Publish(ctx, out); err != nil {
			log.Warn("publish outcome failed", zap.Error(err))
		}
	}
	return out, nil
}

// sendTier resuelve los suscriptores de los distritos del nivel y envía el
// mensaje a cada teléfono una sola vez.
func (b *Broadcaster) sendTier(ctx context.Context, tier zones.Tier, districts []string, text string) TierOutcome {
	to := TierOutcome{Tier: tier.String(), Districts: districts}

	seen := map[string]struct{}{}
	var phones []string
	for _, d := range districts {
		for _, p := range b.dir.SubscribersFor(ctx, d) {
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			phones = append(phones, p)
		}
	}
	to.Recipients = len(phones)
	if len(phones) == 0 {
		return to
	}

	var mu sync.Mutex
	record := func(res sms.Result) {
		mu.Lock()
		defer mu.Unlock()
		if res.Delivered {
			to.Delivered++
		}
		if res.Simulated {
			to.Simulated++
		}
		b.countSend(tier, res)
	}

	if b.concurrency == 1 {
		for _, p := range phones {
			record(b.ch.Send(ctx, p, text))
		}
		return to
	}

	var g errgroup.Group
	g.SetLimit(b.concurrency)
	for _, p := range phones {
		g.Go(func() error {
			record(b.ch.Send(ctx, p, text))
			return nil
		})
	}
	_ = g.Wait()
	return to
}

func (b *Broadcaster) countSend(tier zones.Tier, res sms.Result) {
	if b.metrics == nil {
		return
	}
	result := "failed"
	switch {
	case res.Simulated:
		result = "simulated"
	case res.Delivered:
		result = "delivered"
	}
	b.metrics.Sends.WithLabelValues(tier.String(), result).Inc()
}

func (b *Broadcaster) countBroadcast(result string) {
	if b.metrics != nil {
		b.metrics.Broadcasts.WithLabelValues(result).Inc()
	}
}
