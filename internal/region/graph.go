package region

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed karnataka.yaml
var karnatakaTable []byte

// ErrInvalidTable se devuelve cuando la tabla de adyacencia no supera la validación.
var ErrInvalidTable = errors.New("region: tabla de adyacencia inválida")

// Graph es la tabla estática distrito -> distritos limítrofes.
// Es inmutable una vez cargada; todos los métodos son seguros para uso concurrente.
type Graph struct {
	version   int
	districts []string            // ordenados
	edges     map[string][]string // distrito -> vecinos ordenados, sin duplicados
}

type tableFile struct {
	Version   int                 `yaml:"version"`
	Districts map[string][]string `yaml:"districts"`
}

// Default devuelve la tabla de Karnataka embebida en el binario.
// Panics si la tabla embebida es inválida: es un error de build, no de runtime.
func Default() *Graph {
	g, err := Load(karnatakaTable)
	if err != nil {
		panic(fmt.Sprintf("region: tabla embebida: %v", err))
	}
	return g
}

// Load parsea y valida una tabla YAML con la forma:
//
//	version: 1
//	districts:
//	  Mysuru: [Chamarajanagara, Hassan, Kodagu, Mandya]
func Load(data []byte) (*Graph, error) {
	var tf tableFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("region: parse table: %w", err)
	}
	g := New(tf.Districts)
	g.version = tf.Version
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// New construye un grafo a partir de un mapa de adyacencia sin validarlo.
// Los vecinos duplicados se colapsan. Útil para grafos sintéticos en tests.
func New(table map[string][]string) *Graph {
	g := &Graph{
		districts: make([]string, 0, len(table)),
		edges:     make(map[string][]string, len(table)),
	}
	for d, neighbors := range table {
		g.districts = append(g.districts, d)
		seen := make(map[string]struct{}, len(neighbors))
		list := make([]string, 0, len(neighbors))
		for _, n := range neighbors {
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			list = append(list, n)
		}
		sort.Strings(list)
		g.edges[d] = list
	}
	sort.Strings(g.districts)
	return g
}

// Validate comprueba que la tabla sea simétrica, sin lazos y sin referencias colgantes.
// Reporta todos los problemas encontrados en un único error.
func (g *Graph) Validate() error {
	var problems []string
	for _, d := range g.districts {
		if strings.TrimSpace(d) == "" {
			problems = append(problems, "distrito con nombre vacío")
			continue
		}
		for _, n := range g.edges[d] {
			switch {
			case n == d:
				problems = append(problems, fmt.Sprintf("%s es vecino de sí mismo", d))
			case !g.Has(n):
				problems = append(problems, fmt.Sprintf("%s -> %s: vecino desconocido", d, n))
			case !contains(g.edges[n], d):
				problems = append(problems, fmt.Sprintf("%s -> %s: arista no simétrica", d, n))
			}
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTable, strings.Join(problems, "; "))
	}
	return nil
}

// Neighbors devuelve los distritos limítrofes de district, o vacío si no existe.
// El slice devuelto es una copia.
func (g *Graph) Neighbors(district string) []string {
	ns := g.edges[district]
	out := make([]string, len(ns))
	copy(out, ns)
	return out
}

// Has indica si district es una clave de la tabla.
func (g *Graph) Has(district string) bool {
	_, ok := g.edges[district]
	return ok
}

// Districts devuelve todos los distritos ordenados alfabéticamente.
func (g *Graph) Districts() []string {
	out := make([]string, len(g.districts))
	copy(out, g.districts)
	return out
}

// Version es la versión declarada en la tabla (0 para grafos construidos con New).
func (g *Graph) Version() int { return g.version }

func contains(list []string, s string) bool {
	i := sort.SearchStrings(list, s)
	return i < len(list) && list[i] == s
}
