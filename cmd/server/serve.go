package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Akash-Sakala/AgriQNet/internal/integrations/gemini"
	"github.com/Akash-Sakala/AgriQNet/internal/processing"
	"github.com/Akash-Sakala/AgriQNet/internal/server"
	"github.com/Akash-Sakala/AgriQNet/internal/subscribers"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API (default)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

// runServe inicia el estado compartido, el procesador concurrente y el
// servidor HTTP, y los cierra en orden al recibir SIGINT/SIGTERM.
func runServe(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if !verbose && !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}

	st := server.NewState(server.StateOptions{
		Store:        a.store,
		Districts:    a.graph.Districts(),
		HistoryLimit: cfg.Server.HistoryLimit,
		Metrics:      a.metrics,
		Log:          logger.Named("state"),
	})
	if cfg.Processing.AutoBroadcast {
		st.SetTrigger(a.bc.Broadcast)
	}

	proc := processing.NewProcessor(cfg.Processing.QueueSize, st.HandleAlert, logger.Named("processing"))
	proc.StartWorkers(cfg.Processing.Workers)

	deps := server.Deps{
		Graph:       a.graph,
		Directory:   a.dir,
		Verifier:    subscribers.NewVerifier(a.dir, a.channel, cfg.GetOTPTTL(), logger.Named("otp")),
		Broadcaster: a.bc,
		Processor:   proc,
		Channel:     a.channel,
		Metrics:     a.metrics,
		JWTSecret:   cfg.Auth.JWTSecret,
		Log:         logger.Named("http"),
	}
	if cfg.Gemini.APIKey != "" {
		analyzer, err := gemini.NewAnalyzer(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, logger.Named("gemini"))
		if err != nil {
			logger.Warn("image analysis disabled", zap.Error(err))
		} else {
			deps.Analyzer = analyzer
		}
	}
	if cfg.Auth.JWTSecret == "" {
		logger.Warn("operator routes are unprotected; set auth.jwt_secret or JWT_SECRET")
	}

	srv := server.NewServer(st, deps)
	s := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Señales para shutdown ordenado
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", s.Addr))
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown: signal received")
	case serveErr = <-errCh:
		logger.Error("listen failed", zap.Error(serveErr))
	}

	// 1) Parar de aceptar nuevas conexiones
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GetShutdownTimeout())
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}

	// 2) Cerrar processor (espera a workers y a sus broadcasts)
	proc.Close()

	// 3) Cerrar publisher y store
	if err := a.Close(); err != nil {
		logger.Warn("error closing store", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return serveErr
}
