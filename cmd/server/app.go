package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Akash-Sakala/AgriQNet/internal/broadcast"
	"github.com/Akash-Sakala/AgriQNet/internal/config"
	natspub "github.com/Akash-Sakala/AgriQNet/internal/integrations/nats"
	"github.com/Akash-Sakala/AgriQNet/internal/integrations/sms"
	"github.com/Akash-Sakala/AgriQNet/internal/metrics"
	"github.com/Akash-Sakala/AgriQNet/internal/region"
	"github.com/Akash-Sakala/AgriQNet/internal/storage"
	"github.com/Akash-Sakala/AgriQNet/internal/subscribers"
)

// app agrupa los componentes compartidos por todos los subcomandos.
type app struct {
	graph     *region.Graph
	store     storage.Store
	dir       *subscribers.Directory
	channel   sms.Channel
	simulated bool
	metrics   *metrics.Collector
	publisher *natspub.Publisher
	bc        *broadcast.Broadcaster
}

func newApp(cfg *config.Config, log *zap.Logger) (*app, error) {
	graph, err := loadGraph(cfg.Region.TablePath)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(cfg.Store.Kind, cfg.StoreDSN())
	if err != nil {
		return nil, fmt.Errorf("no se pudo inicializar almacenamiento: %w", err)
	}

	a := &app{graph: graph, store: store}
	a.dir = subscribers.NewDirectory(store, graph, log.Named("subscribers"))

	if cfg.SMSConfigured() {
		ch, err := sms.NewTwilioFallback(cfg.SMS.AccountSID, cfg.SMS.AuthToken, cfg.SMS.FromNumber, cfg.GetSMSTimeout(), log.Named("sms"))
		if err != nil {
			store.Close()
			return nil, err
		}
		a.channel = ch
	} else {
		log.Warn("no SMS credentials configured; every send is simulated")
		a.channel = sms.NewSimulator(log.Named("sms"))
		a.simulated = true
	}

	a.metrics, err = metrics.New(prometheus.DefaultRegisterer)
	if err != nil {
		store.Close()
		return nil, err
	}

	opts := broadcast.Options{
		Log:             log.Named("broadcast"),
		Metrics:         a.metrics,
		TierConcurrency: cfg.Broadcast.TierConcurrency,
	}
	if cfg.NATS.URL != "" {
		pub, err := natspub.Connect(natspub.Config{URL: cfg.NATS.URL, Subject: cfg.NATS.Subject}, log.Named("nats"))
		if err != nil {
			// Sin NATS se sigue avisando por SMS; solo se pierde el evento.
			log.Warn("nats unavailable, outcomes will not be published", zap.Error(err))
		} else {
			a.publisher = pub
			opts.Publisher = pub
		}
	}
	a.bc = broadcast.New(graph, a.dir, a.channel, opts)

	log.Info("agriqnet ready",
		zap.Int("districts", len(graph.Districts())),
		zap.Int("table_version", graph.Version()),
		zap.String("store", cfg.Store.Kind),
		zap.Bool("sms_simulated", a.simulated))
	return a, nil
}

func (a *app) Close() error {
	if a.publisher != nil {
		a.publisher.Close()
	}
	return a.store.Close()
}

func loadGraph(path string) (*region.Graph, error) {
	if path == "" {
		return region.Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("region: read %s: %w", path, err)
	}
	return region.Load(data)
}

// withApp construye la app para un subcomando corto y la cierra al terminar.
func withApp(ctx context.Context, fn func(ctx context.Context, a *app) error) error {
	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("close failed", zap.Error(err))
		}
	}()
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, a)
}
