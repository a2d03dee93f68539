package processing

import (
	"regexp"
	"strings"
)

// Patrón y metadatos de la plaga detectada por regex.
type pattern struct {
	re       *regexp.Regexp
	pest     string
	severity string
}

// Patrones de plagas frecuentes en Karnataka. Case-insensitive; el orden
// importa porque gana el primer match.
var patterns = []pattern{
	{regexp.MustCompile(`(?i)(fall\s+army\s*worms?|spodoptera)`), "fall armyworm", SeverityCritical},
	{regexp.MustCompile(`(?i)(locusts?|midatas?)`), "locust", SeverityCritical},
	{regexp.MustCompile(`(?i)(brown\s+plant\s*hoppers?|\bbph\b)`), "brown planthopper", SeverityHigh},
	{regexp.MustCompile(`(?i)(pink\s+boll\s*worms?)`), "pink bollworm", SeverityHigh},
	{regexp.MustCompile(`(?i)(stem\s+borers?)`), "stem borer", SeverityHigh},
	{regexp.MustCompile(`(?i)(white\s+grubs?|\bgrubs?\b)`), "white grub", SeverityHigh},
	{regexp.MustCompile(`(?i)(white\s*fl(y|ies))`), "whitefly", SeverityMedium},
	{regexp.MustCompile(`(?i)(mealy\s*bugs?)`), "mealybug", SeverityMedium},
	{regexp.MustCompile(`(?i)(aphids?)`), "aphid", SeverityMedium},
	{regexp.MustCompile(`(?i)(thrips)`), "thrips", SeverityMedium},
}

// detect devuelve la plaga, severidad y extracto del primer patrón que coincide.
func detect(text string) (pest, sev, extract string) {
	t := strings.TrimSpace(text)
	if t == "" {
		return "", "", ""
	}
	for _, p := range patterns {
		if loc := p.re.FindStringIndex(t); loc != nil {
			return p.pest, p.severity, t[loc[0]:loc[1]]
		}
	}
	return "", SeverityLow, ""
}
