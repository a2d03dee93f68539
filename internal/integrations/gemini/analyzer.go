// Package gemini identifica plagas a partir de fotos usando la API de Gemini.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

const DefaultModel = "gemini-2.5-flash"

var (
	ErrEmptyImage    = errors.New("gemini: imagen vacía")
	ErrEmptyResponse = errors.New("gemini: respuesta sin texto")
)

// PestAnalysis es la respuesta estructurada del modelo.
type PestAnalysis struct {
	PestName    string   `json:"pestName"`
	Confidence  float64  `json:"confidence"`
	Severity    string   `json:"severity"`
	Description string   `json:"description"`
	Treatments  []string `json:"treatments"`
	Preventions []string `json:"preventions"`
}

// Detected indica si el modelo encontró una plaga reconocible.
func (p PestAnalysis) Detected() bool {
	name := strings.ToLower(strings.TrimSpace(p.PestName))
	return name != "" && name != "none" && !strings.HasPrefix(name, "no pest")
}

// generator es el subconjunto de *genai.Models que se usa.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Analyzer struct {
	models generator
	model  string
	log    *zap.Logger
}

// NewAnalyzer crea el cliente de Gemini. apiKey es obligatoria.
func NewAnalyzer(ctx context.Context, apiKey, model string, log *zap.Logger) (*Analyzer, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: API key requerida")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: crear cliente: %w", err)
	}
	return newAnalyzer(client.Models, model, log), nil
}

func newAnalyzer(models generator, model string, log *zap.Logger) *Analyzer {
	if model == "" {
		model = DefaultModel
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Analyzer{models: models, model: model, log: log}
}

// AnalyzePestImage envía la imagen al modelo y devuelve el diagnóstico en el
// idioma pedido (código ISO, p. ej. "kn"); las claves JSON siguen en inglés.
func (a *Analyzer) AnalyzePestImage(ctx context.Context, image []byte, mimeType, lang string) (PestAnalysis, error) {
	if len(image) == 0 {
		return PestAnalysis{}, ErrEmptyImage
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	language := languageName(lang)

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(image, mimeType),
			genai.NewPartFromText(prompt(language)),
		}, genai.RoleUser),
	}
	resp, err := a.models.GenerateContent(ctx, a.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   responseSchema(language),
	})
	if err != nil {
		a.log.Error("pest analysis failed", zap.String("model", a.model), zap.Error(err))
		return PestAnalysis{}, fmt.Errorf("gemini: generate: %w", err)
	}
	out, err := parseAnalysis(resp.Text())
	if err != nil {
		return PestAnalysis{}, err
	}
	a.log.Info("pest analysed",
		zap.String("pest", out.PestName),
		zap.String("severity", out.Severity),
		zap.Float64("confidence", out.Confidence))
	return out, nil
}

func parseAnalysis(text string) (PestAnalysis, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return PestAnalysis{}, ErrEmptyResponse
	}
	// Algunos modelos envuelven el JSON en un bloque de código.
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	var out PestAnalysis
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return PestAnalysis{}, fmt.Errorf("gemini: decodificar respuesta: %w", err)
	}
	return out, nil
}

func prompt(language string) string {
	return "Analyze this image. If it contains a plant pest or disease, identify it, estimate severity, " +
		"and provide treatments. If no pest is found, state that.\n" +
		"IMPORTANT: Provide all text descriptions, names, and lists in " + language + " language.\n" +
		"Keep JSON keys in English."
}

func responseSchema(language string) *genai.Schema {
	str := func(desc string) *genai.Schema {
		return &genai.Schema{Type: genai.TypeString, Description: desc}
	}
	list := func(desc string) *genai.Schema {
		return &genai.Schema{Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}, Description: desc}
	}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"pestName":    str("Name in " + language),
			"confidence":  {Type: genai.TypeNumber},
			"severity":    {Type: genai.TypeString, Enum: []string{"Low", "Medium", "High", "Critical"}},
			"description": str("Description in " + language),
			"treatments":  list("List of treatments in " + language),
			"preventions": list("List of preventions in " + language),
		},
		Required: []string{"pestName", "severity", "description"},
	}
}

var languages = map[string]string{
	"en": "English",
	"hi": "Hindi",
	"kn": "Kannada",
	"te": "Telugu",
	"ta": "Tamil",
	"ml": "Malayalam",
	"mr": "Marathi",
}

func languageName(code string) string {
	if name, ok := languages[strings.ToLower(strings.TrimSpace(code))]; ok {
		return name
	}
	return "English"
}
