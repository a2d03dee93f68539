package processing

import "time"

// Niveles de severidad asignados a un reporte de campo.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Report representa un reporte de campo recibido por SMS o desde la app.
// Pest es opcional: si viene vacío se intenta detectar a partir de Text.
type Report struct {
	District   string    `json:"district"`
	Text       string    `json:"text"`
	Pest       string    `json:"pest,omitempty"`
	ReceivedAt time.Time `json:"receivedAt"`
	// Verified lo marca el servidor cuando el reporte viene de un operador
	// autenticado. Nunca se lee del cuerpo de la petición.
	Verified bool `json:"-"`
}

// Alert representa la alerta resultante del análisis del reporte.
type Alert struct {
	ID        string    `json:"id"`
	District  string    `json:"district"`
	Pest      string    `json:"pest"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
	Extract   string    `json:"extract"`
	Timestamp time.Time `json:"timestamp"`
	// BroadcastID enlaza la alerta con el broadcast que disparó, si lo hubo.
	BroadcastID string `json:"broadcastId,omitempty"`
}

// Actionable indica si la alerta justifica un broadcast a los suscriptores.
func (a Alert) Actionable() bool {
	return a.Pest != "" && (a.Severity == SeverityHigh || a.Severity == SeverityCritical)
}
