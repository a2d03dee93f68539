package broadcast

import (
	"fmt"
	"time"

	"github.com/Akash-Sakala/AgriQNet/internal/zones"
)

// TierOutcome acumula los envíos de un nivel.
type TierOutcome struct {
	Tier       string   `json:"tier"`
	Districts  []string `json:"districts"`
	Recipients int      `json:"recipients"`
	Delivered  int      `json:"delivered"`
	Simulated  int      `json:"simulated"`
}

// Outcome es el resultado agregado de un broadcast. No se persiste: se
// devuelve a quien lo disparó.
type Outcome struct {
	ID         string      `json:"id"`
	Epicenter  string      `json:"epicenter"`
	Pest       string      `json:"pest"`
	Zones      zones.Zones `json:"zones"`
	Red        TierOutcome `json:"red"`
	Orange     TierOutcome `json:"orange"`
	Yellow     TierOutcome `json:"yellow"`
	Simulated  bool        `json:"wasSimulated"`
	StartedAt  time.Time   `json:"startedAt"`
	FinishedAt time.Time   `json:"finishedAt"`
}

// Summary es la vista reducida que recibe el operador. Los recuentos son por
// teléfono y nivel: un teléfono suscrito a dos distritos del mismo nivel recibe
// un solo mensaje y cuenta una vez, no una vez por distrito.
type Summary struct {
	RedDelivered    int  `json:"redDelivered"`
	OrangeDelivered int  `json:"orangeDelivered"`
	YellowDelivered int  `json:"yellowDelivered"`
	WasSimulated    bool `json:"wasSimulated"`
}

func (o Outcome) Summary() Summary {
	return Summary{
		RedDelivered:    o.Red.Delivered,
		OrangeDelivered: o.Orange.Delivered,
		YellowDelivered: o.Yellow.Delivered,
		WasSimulated:    o.Simulated,
	}
}

func (o *Outcome) setTier(t zones.Tier, to TierOutcome) {
	switch t {
	case zones.Red:
		o.Red = to
	case zones.Orange:
		o.Orange = to
	case zones.Yellow:
		o.Yellow = to
	}
}

// Message construye el texto de cada nivel. La severidad decrece de Red a Yellow.
func Message(t zones.Tier, epicenter, pest string) string {
	switch t {
	case zones.Red:
		return fmt.Sprintf("[AgriQNet ALERT] RED ZONE: Critical %s outbreak detected in %s. Take immediate action!", pest, epicenter)
	case zones.Orange:
		return fmt.Sprintf("[AgriQNet WARNING] ORANGE ZONE: %s detected in neighbor %s. Be vigilant!", pest, epicenter)
	case zones.Yellow:
		return fmt.Sprintf("[AgriQNet ADVISORY] YELLOW ZONE: %s activity reported in nearby districts. Monitor crops.", pest)
	default:
		return ""
	}
}
