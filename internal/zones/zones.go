package zones

import "sort"

// Tier es el nivel de riesgo según la distancia al epicentro.
type Tier int

const (
	None   Tier = iota
	Red         // epicentro
	Orange      // vecinos directos
	Yellow      // vecinos de segundo grado
)

// Tiers en orden de prioridad de envío.
var Tiers = []Tier{Red, Orange, Yellow}

func (t Tier) String() string {
	switch t {
	case Red:
		return "red"
	case Orange:
		return "orange"
	case Yellow:
		return "yellow"
	default:
		return "none"
	}
}

// Neighborer es la única dependencia del cálculo: la tabla de adyacencia.
type Neighborer interface {
	Neighbors(district string) []string
}

// Zones agrupa los tres niveles disjuntos calculados desde un epicentro.
// Cada nivel está ordenado alfabéticamente.
type Zones struct {
	Epicenter string   `json:"epicenter"`
	Red       []string `json:"red"`
	Orange    []string `json:"orange"`
	Yellow    []string `json:"yellow"`
}

// Compute calcula las zonas de riesgo alrededor de epicenter.
// Es total sobre cualquier string: un distrito desconocido no tiene vecinos.
func Compute(g Neighborer, epicenter string) Zones {
	orange := dedupe(g.Neighbors(epicenter))

	excluded := make(map[string]struct{}, len(orange)+1)
	excluded[epicenter] = struct{}{}
	for _, d := range orange {
		excluded[d] = struct{}{}
	}

	seen := map[string]struct{}{}
	yellow := []string{}
	for _, o := range orange {
		for _, n := range g.Neighbors(o) {
			if _, skip := excluded[n]; skip {
				continue
			}
			if _, dup := seen[n]; dup {
				continue
			}
			seen[n] = struct{}{}
			yellow = append(yellow, n)
		}
	}
	sort.Strings(yellow)

	return Zones{
		Epicenter: epicenter,
		Red:       []string{epicenter},
		Orange:    orange,
		Yellow:    yellow,
	}
}

// Districts devuelve los distritos de un nivel.
func (z Zones) Districts(t Tier) []string {
	switch t {
	case Red:
		return z.Red
	case Orange:
		return z.Orange
	case Yellow:
		return z.Yellow
	default:
		return nil
	}
}

// TierOf clasifica un distrito respecto a estas zonas.
func (z Zones) TierOf(district string) Tier {
	for _, t := range Tiers {
		for _, d := range z.Districts(t) {
			if d == district {
				return t
			}
		}
	}
	return None
}

// dedupe devuelve una copia ordenada y sin duplicados.
func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, d := range in {
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}
