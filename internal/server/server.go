package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Akash-Sakala/AgriQNet/internal/broadcast"
	"github.com/Akash-Sakala/AgriQNet/internal/integrations/gemini"
	"github.com/Akash-Sakala/AgriQNet/internal/integrations/sms"
	"github.com/Akash-Sakala/AgriQNet/internal/metrics"
	"github.com/Akash-Sakala/AgriQNet/internal/processing"
	"github.com/Akash-Sakala/AgriQNet/internal/region"
	"github.com/Akash-Sakala/AgriQNet/internal/subscribers"
	"github.com/Akash-Sakala/AgriQNet/internal/zones"
)

// PestAnalyzer identifica plagas en imágenes; lo satisface *gemini.Analyzer.
type PestAnalyzer interface {
	AnalyzePestImage(ctx context.Context, image []byte, mimeType, lang string) (gemini.PestAnalysis, error)
}

// Deps agrupa los componentes que expone la API. Analyzer y Metrics son
// opcionales.
type Deps struct {
	Graph       *region.Graph
	Directory   *subscribers.Directory
	Verifier    *subscribers.Verifier
	Broadcaster *broadcast.Broadcaster
	Processor   *processing.Processor
	Channel     sms.Channel
	Analyzer    PestAnalyzer
	Metrics     *metrics.Collector
	JWTSecret   string
	Log         *zap.Logger
}

// Server HTTP: sirve la API de alertas de plagas.
type Server struct {
	state  *State
	deps   Deps
	log    *zap.Logger
	engine *gin.Engine
}

func NewServer(state *State, deps Deps) *Server {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	s := &Server{state: state, deps: deps, log: deps.Log, engine: gin.New()}
	s.engine.Use(gin.Recovery(), requestLogger(s.log))
	s.routes()
	return s
}

func (s *Server) Router() http.Handler { return s.engine }

func (s *Server) routes() {
	r := s.engine
	r.GET("/health", s.handleHealth)
	if s.deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	}

	api := r.Group("/api")
	api.GET("/districts", s.handleDistricts)
	api.GET("/zones/:district", s.handleZones)
	api.GET("/status", s.handleStatus)
	api.GET("/alerts", s.handleAlerts)
	api.GET("/broadcasts", s.handleBroadcasts)

	api.POST("/subscriptions/otp", s.handleStartVerification)
	api.POST("/subscriptions/verify", s.handleConfirmVerification)
	api.POST("/reports", s.handleReport)
	api.POST("/detect", s.handleDetect)

	op := api.Group("", operatorAuth(s.deps.JWTSecret))
	op.POST("/subscriptions", s.handleSubscribe)
	op.POST("/broadcast", s.handleBroadcast)
	op.POST("/send-sms", s.handleSendSMS)
	op.POST("/reset", s.handleReset)
}

// GET /health
func (s *Server) handleHealth(c *gin.Context) {
	resp := gin.H{"status": "ok", "districts": len(s.deps.Graph.Districts())}
	if t := s.state.lastBroadcastAt(); !t.IsZero() {
		resp["lastBroadcastAt"] = t
	}
	c.JSON(http.StatusOK, resp)
}

type districtView struct {
	Name        string   `json:"name"`
	Neighbors   []string `json:"neighbors"`
	Subscribers int      `json:"subscribers"`
}

// GET /api/districts: grafo de distritos con número de suscriptores.
func (s *Server) handleDistricts(c *gin.Context) {
	counts, err := s.deps.Directory.Counts(c.Request.Context())
	if err != nil {
		s.log.Warn("subscriber counts unavailable", zap.Error(err))
		counts = map[string]int{}
	}
	names := s.deps.Graph.Districts()
	out := make([]districtView, 0, len(names))
	for _, d := range names {
		out = append(out, districtView{Name: d, Neighbors: s.deps.Graph.Neighbors(d), Subscribers: counts[d]})
	}
	c.JSON(http.StatusOK, gin.H{"version": s.deps.Graph.Version(), "districts": out})
}

// GET /api/zones/:district
func (s *Server) handleZones(c *gin.Context) {
	district := c.Param("district")
	z := zones.Compute(s.deps.Graph, district)
	c.JSON(http.StatusOK, gin.H{"known": s.deps.Graph.Has(district), "zones": z})
}

// GET /api/status: color por distrito tras los broadcasts.
func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.state.Status())
}

// GET /api/alerts: alertas recientes.
func (s *Server) handleAlerts(c *gin.Context) {
	c.JSON(http.StatusOK, s.state.ListAlerts(c.Request.Context()))
}

// GET /api/broadcasts: broadcasts recientes (solo memoria).
func (s *Server) handleBroadcasts(c *gin.Context) {
	c.JSON(http.StatusOK, s.state.Outcomes())
}

// POST /api/reset: retorna distritos a verde.
func (s *Server) handleReset(c *gin.Context) {
	s.state.Reset()
	c.Status(http.StatusNoContent)
}

type broadcastRequest struct {
	District string `json:"district"`
	Pest     string `json:"pest"`
}

type broadcastResponse struct {
	broadcast.Summary
	Outcome broadcast.Outcome `json:"outcome"`
}

// POST /api/broadcast
func (s *Server) handleBroadcast(c *gin.Context) {
	var req broadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	out, err := s.deps.Broadcaster.Broadcast(c.Request.Context(), req.District, req.Pest)
	switch {
	case errors.Is(err, broadcast.ErrMissingDistrict), errors.Is(err, broadcast.ErrMissingPest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		s.log.Error("broadcast failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "broadcast failed"})
		return
	}
	s.state.RecordOutcome(out)
	c.JSON(http.StatusOK, broadcastResponse{Summary: out.Summary(), Outcome: out})
}

type sendSMSRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// POST /api/send-sms: envío directo a un número.
func (s *Server) handleSendSMS(c *gin.Context) {
	var req sendSMSRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.To == "" || req.Body == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to and body are required"})
		return
	}
	res := s.deps.Channel.Send(c.Request.Context(), req.To, req.Body)
	switch {
	case errors.Is(res.Err, sms.ErrInvalidPhone):
		c.JSON(http.StatusBadRequest, gin.H{"error": res.Err.Error()})
	case !res.Delivered:
		c.JSON(http.StatusBadGateway, gin.H{"error": errString(res.Err), "delivered": false})
	default:
		c.JSON(http.StatusOK, gin.H{"delivered": true, "simulated": res.Simulated, "sid": res.SID})
	}
}

func errString(err error) string {
	if err == nil {
		return "not delivered"
	}
	return err.Error()
}

// requestLogger registra cada petición con zap.
func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
