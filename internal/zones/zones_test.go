package zones

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/Akash-Sakala/AgriQNet/internal/region"
)

func TestComputeMysuru(t *testing.T) {
	z := Compute(region.Default(), "Mysuru")

	assert.Equal(t, []string{"Mysuru"}, z.Red)
	if diff := cmp.Diff([]string{"Chamarajanagara", "Hassan", "Kodagu", "Mandya"}, z.Orange); diff != "" {
		t.Fatalf("orange mismatch (-want +got):\n%s", diff)
	}
	assert.Contains(t, z.Yellow, "Dakshina Kannada")
	assert.Contains(t, z.Yellow, "Ramanagara")
	assert.NotContains(t, z.Yellow, "Mysuru")
	for _, o := range z.Orange {
		assert.NotContains(t, z.Yellow, o)
	}
}

func TestComputeUnknownEpicenter(t *testing.T) {
	got := Compute(region.Default(), "Atlantis")
	want := Zones{Epicenter: "Atlantis", Red: []string{"Atlantis"}, Orange: []string{}, Yellow: []string{}}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("zones mismatch (-want +got):\n%s", diff)
	}
}

func TestComputePropertiesForEveryDistrict(t *testing.T) {
	g := region.Default()

	for _, d := range g.Districts() {
		z := Compute(g, d)

		assert.Equal(t, []string{d}, z.Red, d)
		assert.NotContains(t, z.Orange, d, d)
		assert.NotContains(t, z.Yellow, d, d)
		assert.Equal(t, g.Neighbors(d), z.Orange, d)

		orange := map[string]bool{}
		for _, o := range z.Orange {
			orange[o] = true
		}
		for _, y := range z.Yellow {
			assert.False(t, orange[y], "%s: %s en orange y yellow", d, y)
		}

		// La unión es exactamente el vecindario a 2 saltos.
		hood := map[string]bool{d: true}
		for _, o := range g.Neighbors(d) {
			hood[o] = true
			for _, n := range g.Neighbors(o) {
				hood[n] = true
			}
		}
		assert.Equal(t, len(hood), len(z.Red)+len(z.Orange)+len(z.Yellow), d)
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	g := region.Default()
	first := Compute(g, "Tumakuru")
	for range 10 {
		if diff := cmp.Diff(first, Compute(g, "Tumakuru")); diff != "" {
			t.Fatalf("non-deterministic zones:\n%s", diff)
		}
	}
}

func TestComputeSyntheticGraph(t *testing.T) {
	// A - B - C - D, B - E
	g := region.New(map[string][]string{
		"A": {"B"},
		"B": {"A", "C", "E"},
		"C": {"B", "D"},
		"D": {"C"},
		"E": {"B"},
	})

	z := Compute(g, "A")
	assert.Equal(t, []string{"B"}, z.Orange)
	assert.Equal(t, []string{"C", "E"}, z.Yellow)
	assert.Equal(t, None, z.TierOf("D"))
	assert.Equal(t, Yellow, z.TierOf("E"))
	assert.Equal(t, Red, z.TierOf("A"))
}

func TestTierString(t *testing.T) {
	assert.Equal(t, "red", Red.String())
	assert.Equal(t, "orange", Orange.String())
	assert.Equal(t, "yellow", Yellow.String())
	assert.Equal(t, "none", None.String())
}
