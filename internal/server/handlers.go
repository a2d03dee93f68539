package server

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Akash-Sakala/AgriQNet/internal/integrations/gemini"
	"github.com/Akash-Sakala/AgriQNet/internal/integrations/sms"
	"github.com/Akash-Sakala/AgriQNet/internal/processing"
	"github.com/Akash-Sakala/AgriQNet/internal/subscribers"
)

const maxImageBytes = 10 << 20

type subscriptionRequest struct {
	CountryCode string `json:"countryCode"`
	Phone       string `json:"phone"`
	District    string `json:"district"`
	Code        string `json:"code"`
}

// fullPhone une prefijo y número cuando el cliente los envía por separado.
func (r subscriptionRequest) fullPhone() string {
	phone := strings.TrimSpace(r.Phone)
	if strings.HasPrefix(phone, "+") || r.CountryCode == "" {
		return phone
	}
	cc := strings.TrimSpace(r.CountryCode)
	if !strings.HasPrefix(cc, "+") {
		cc = "+" + cc
	}
	return cc + phone
}

// subscriptionStatus traduce los errores de suscripción a códigos HTTP.
func subscriptionStatus(err error) int {
	switch {
	case errors.Is(err, subscribers.ErrMissingDistrict), errors.Is(err, sms.ErrInvalidPhone),
		errors.Is(err, subscribers.ErrInvalidCode):
		return http.StatusBadRequest
	case errors.Is(err, subscribers.ErrNoPendingVerification):
		return http.StatusNotFound
	case errors.Is(err, subscribers.ErrCodeNotSent):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// POST /api/subscriptions: alta directa, sin OTP (herramienta de operador).
func (s *Server) handleSubscribe(c *gin.Context) {
	var req subscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	phone := req.fullPhone()
	if err := s.deps.Directory.Subscribe(c.Request.Context(), req.District, phone); err != nil {
		c.JSON(subscriptionStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"district": strings.TrimSpace(req.District), "subscribed": true})
}

// POST /api/subscriptions/otp: envía el código de verificación.
func (s *Server) handleStartVerification(c *gin.Context) {
	var req subscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	p, err := s.deps.Verifier.Start(c.Request.Context(), req.District, req.fullPhone())
	if err != nil {
		c.JSON(subscriptionStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, p)
}

// POST /api/subscriptions/verify: confirma el código y suscribe.
func (s *Server) handleConfirmVerification(c *gin.Context) {
	var req subscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	district, err := s.deps.Verifier.Confirm(c.Request.Context(), req.fullPhone(), req.Code)
	if err != nil {
		c.JSON(subscriptionStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"district": district, "subscribed": true})
}

// POST /api/reports: recibe JSON {district, text, pest} o un formulario
// (webhook SMS entrante con From/Body, o district/text). Encola el reporte
// para procesamiento concurrente.
func (s *Server) handleReport(c *gin.Context) {
	var r processing.Report
	if strings.Contains(c.ContentType(), "application/json") {
		if err := c.ShouldBindJSON(&r); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
			return
		}
	} else {
		r.District = c.PostForm("district")
		r.Text = c.PostForm("text")
		r.Pest = c.PostForm("pest")
		if body := c.PostForm("Body"); body != "" {
			r.Text = body
			s.log.Info("inbound sms report", zap.String("from", c.PostForm("From")))
		}
	}
	r.District = strings.TrimSpace(r.District)
	if r.District == "" {
		r.District = matchDistrict(s.deps.Graph.Districts(), r.Text)
	}
	if r.District == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "district required"})
		return
	}
	if strings.TrimSpace(r.Text) == "" && strings.TrimSpace(r.Pest) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text or pest required"})
		return
	}
	r.ReceivedAt = time.Now()
	r.Verified = isOperator(c, s.deps.JWTSecret)

	if err := s.deps.Processor.Submit(c.Request.Context(), r); err != nil {
		if errors.Is(err, processing.ErrClosed) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "shutting down"})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued", "district": r.District})
}

// matchDistrict busca un nombre de distrito dentro del texto libre. Si hay
// varios, gana el nombre más largo.
func matchDistrict(districts []string, text string) string {
	lower := strings.ToLower(text)
	best := ""
	for _, d := range districts {
		if strings.Contains(lower, strings.ToLower(d)) && len(d) > len(best) {
			best = d
		}
	}
	return best
}

// POST /api/detect: imagen multipart "image", idioma opcional "lang".
func (s *Server) handleDetect(c *gin.Context) {
	if s.deps.Analyzer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image analysis not configured"})
		return
	}
	fh, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file required"})
		return
	}
	if fh.Size > maxImageBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image too large"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read image"})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxImageBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read image"})
		return
	}

	analysis, err := s.deps.Analyzer.AnalyzePestImage(c.Request.Context(), data, fh.Header.Get("Content-Type"), c.PostForm("lang"))
	switch {
	case errors.Is(err, gemini.ErrEmptyImage):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusBadGateway, gin.H{"error": "analysis failed"})
	default:
		c.JSON(http.StatusOK, analysis)
	}
}
