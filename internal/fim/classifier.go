package fim

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"numa/internal/logging"
)

// Classifier resolves an utterance through the three-level cascade:
// validity, domain, financial resolution. Levels one and two run locally
// where cheap signals suffice; the rest is a single model call.
type Classifier struct {
	client   LLMClient
	log      *zap.Logger
	antLimit float64
}

// ClassifierOption tunes a Classifier.
type ClassifierOption func(*Classifier)

// WithAntExpenseLimit overrides the default ant-expense threshold.
func WithAntExpenseLimit(limit float64) ClassifierOption {
	return func(c *Classifier) {
		if limit > 0 {
			c.antLimit = limit
		}
	}
}

// NewClassifier wires the model client.
func NewClassifier(client LLMClient, log *zap.Logger, opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		client:   client,
		log:      logging.For(log, logging.CategoryFIM),
		antLimit: AntExpenseLimit,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

const steerReply = "Soy tu asistente de finanzas. Puedo anotar gastos, responder sobre tus movimientos o darte un consejo con base en tus números."

const metaReply = "Eso es un comando del sistema y no puedo ejecutarlo desde aquí. Sigo disponible para tus gastos y consultas."

const clarifyReply = "No entendí bien. ¿Me repites el monto y en qué fue?"

var socialPhrases = []string{
	"hola", "buenos dias", "buenas tardes", "buenas noches", "que tal",
	"gracias", "adios", "hasta luego", "como estas",
}

var offDomainHints = []string{
	"clima", "futbol", "noticias", "receta", "cancion", "pelicula",
	"chiste", "horoscopo",
}

// metaPhrases are system commands, not financial utterances. They steer
// with the META sub-intent so callers can tell them from small talk.
var metaPhrases = []string{
	"borra mis datos", "borra todo", "elimina mi cuenta",
	"cambia mi contrasena", "exporta mis datos", "cierra mi sesion",
}

// steer returns a non-nil record when the utterance resolves locally,
// before any model call.
func steer(text string) *IntentRecord {
	norm := normalizeLabel(text)

	hasLetter := false
	for _, r := range norm {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			hasLetter = true
			break
		}
	}
	if !hasLetter {
		return &IntentRecord{Intent: IntentClarify, Confidence: 1, Reply: clarifyReply}
	}

	for _, phrase := range metaPhrases {
		if strings.Contains(norm, phrase) {
			return &IntentRecord{Intent: IntentSteer, SubIntent: SubIntentMeta, Confidence: 1, Reply: metaReply}
		}
	}

	words := strings.Fields(norm)
	if len(words) <= 4 {
		for _, phrase := range socialPhrases {
			if norm == phrase || strings.HasPrefix(norm, phrase+" ") {
				return &IntentRecord{Intent: IntentSteer, SubIntent: SubIntentSocial, Confidence: 1, Reply: steerReply}
			}
		}
	}
	for _, hint := range offDomainHints {
		if strings.Contains(norm, hint) {
			return &IntentRecord{Intent: IntentSteer, SubIntent: SubIntentSocial, Confidence: 0.9, Reply: steerReply}
		}
	}
	return nil
}

const classifySystemPrompt = `Eres el motor de intención de un asistente de finanzas personales en español de México.
Analiza el mensaje del usuario y devuelve SOLO un arreglo JSON de intenciones, en el orden en que aparecen.

Cada elemento:
{
  "intent": "WRITE_LOG|READ_QUERY|CONFIRM_UPDATE|ADVICE|PLAN|STEER|CLARIFY",
  "sub_intent": "",
  "confidence": 0.0-1.0,
  "entities": {
    "amount": 0.0,
    "concept": "",
    "merchant": "",
    "category": "",
    "tx_type": "expense|income|debt",
    "period": "hoy|ayer|semana|mes",
    "question": ""
  },
  "reply": ""
}

Reglas:
- WRITE_LOG: registrar un movimiento. Requiere amount y concept.
- Un mensaje puede contener varios WRITE_LOG ("300 de tacos y 150 de uber" son dos, en ese orden).
- READ_QUERY: preguntas sobre sus movimientos ("¿cuánto gasté hoy?"). Llena period y question.
- CONFIRM_UPDATE: corrige o confirma un registro anterior ("fue en Oxxo", "sí, confirma").
- ADVICE: pide un consejo sobre sus finanzas. PLAN: pide un plan o presupuesto.
- STEER: fuera del dominio financiero. sub_intent es "META" si es un comando del sistema (borrar datos, cuentas, sesiones) y "SOCIAL" si es saludo o charla.
- CLARIFY: ininteligible o incompleto.
- category solo si es obvia, de esta lista: %s.
- No inventes montos ni comercios que el usuario no dijo.`

// Classify resolves text into one or more intent records. The result is
// never empty.
func (c *Classifier) Classify(ctx context.Context, text string) ([]IntentRecord, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyInput
	}

	if rec := steer(text); rec != nil {
		c.log.Debug("resolved locally", zap.String("intent", string(rec.Intent)))
		return []IntentRecord{*rec}, nil
	}

	system := fmt.Sprintf(classifySystemPrompt, strings.Join(Categories, ", "))
	response, err := c.client.CompleteWithSystem(ctx, system, text)
	if err != nil {
		return nil, fmt.Errorf("intent classification failed: %w", err)
	}

	records, err := decodeIntents(response)
	if err != nil {
		c.log.Warn("could not decode intent payload", zap.Error(err))
		return []IntentRecord{{Intent: IntentClarify, Confidence: 0, Reply: clarifyReply}}, nil
	}

	for i := range records {
		records[i] = c.sanitize(records[i])
	}
	if len(records) == 0 {
		records = []IntentRecord{{Intent: IntentClarify, Confidence: 0, Reply: clarifyReply}}
	}

	c.log.Debug("classified utterance",
		zap.Int("intents", len(records)),
		zap.String("first", string(records[0].Intent)))
	return records, nil
}

func decodeIntents(response string) ([]IntentRecord, error) {
	if raw := extractJSONArray(response); raw != "" {
		var records []IntentRecord
		if err := json.Unmarshal([]byte(raw), &records); err == nil {
			return records, nil
		}
	}
	// Some replies wrap a single intent in a bare object.
	if raw := extractJSON(response); raw != "" {
		var record IntentRecord
		if err := json.Unmarshal([]byte(raw), &record); err == nil && record.Intent != "" {
			return []IntentRecord{record}, nil
		}
	}
	return nil, ErrMalformedIntent
}

// sanitize enforces the closed vocabularies and the slot rules the model
// cannot be trusted with.
func (c *Classifier) sanitize(rec IntentRecord) IntentRecord {
	if !ValidIntent(rec.Intent) {
		rec.Intent = IntentClarify
		rec.Confidence = 0
	}

	// A write without an amount or concept cannot be recorded; demote it
	// instead of guessing.
	if rec.Intent == IntentWriteLog {
		if rec.Entities.Amount <= 0 || strings.TrimSpace(rec.Entities.Concept) == "" {
			rec.Intent = IntentClarify
			rec.SubIntent = ""
			if rec.Reply == "" {
				rec.Reply = clarifyReply
			}
			return rec
		}
		if rec.Entities.Category != "" {
			rec.Entities.Category = CoerceCategory(rec.Entities.Category)
		}
		rec.Entities.Category = applyAntRule(
			rec.Entities.Category, rec.Entities.Amount, c.antLimit,
			rec.Entities.Concept, rec.Entities.Merchant)
	}

	if rec.Intent == IntentSteer {
		switch rec.SubIntent {
		case SubIntentMeta:
			if rec.Reply == "" {
				rec.Reply = metaReply
			}
		case SubIntentSocial:
		default:
			rec.SubIntent = SubIntentSocial
		}
		if rec.Reply == "" {
			rec.Reply = steerReply
		}
	} else {
		rec.SubIntent = ""
	}
	if rec.Intent == IntentClarify && rec.Reply == "" {
		rec.Reply = clarifyReply
	}
	return rec
}
