package fim

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// CategoryClassifier assigns taxonomy labels to (concept, merchant) pairs.
// It satisfies the ledger's Categorizer interface.
type CategoryClassifier struct {
	client   LLMClient
	antLimit float64
}

// CategoryOption tunes a CategoryClassifier.
type CategoryOption func(*CategoryClassifier)

// WithAntLimit overrides the default ant-expense threshold in the
// classification contract.
func WithAntLimit(limit float64) CategoryOption {
	return func(c *CategoryClassifier) {
		if limit > 0 {
			c.antLimit = limit
		}
	}
}

// NewCategoryClassifier wires the model client.
func NewCategoryClassifier(client LLMClient, opts ...CategoryOption) *CategoryClassifier {
	c := &CategoryClassifier{client: client, antLimit: AntExpenseLimit}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

const categorySystemPrompt = `Clasifica un gasto en exactamente una categoría de esta lista: %s.
Un gasto chico (menos de $%.0f) en café o tienda de conveniencia va en "Café/Snacks" o "Compras", nunca en "Despensa".
Devuelve SOLO JSON: {"category": "...", "confidence": 0.0-1.0}`

type categoryReply struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// ClassifyCategory returns a taxonomy label and the model's confidence in
// it. The label is always coerced onto the closed set.
func (c *CategoryClassifier) ClassifyCategory(ctx context.Context, concept, merchant string) (string, float64, error) {
	prompt := fmt.Sprintf("Concepto: %s", concept)
	if strings.TrimSpace(merchant) != "" {
		prompt += fmt.Sprintf("\nComercio: %s", merchant)
	}

	system := fmt.Sprintf(categorySystemPrompt, strings.Join(Categories, ", "), c.antLimit)
	response, err := c.client.CompleteWithSystem(ctx, system, prompt)
	if err != nil {
		return "", 0, fmt.Errorf("category classification failed: %w", err)
	}

	raw := extractJSON(response)
	if raw == "" {
		return "", 0, ErrMalformedIntent
	}
	var reply categoryReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrMalformedIntent, err)
	}

	label := CoerceCategory(reply.Category)
	return label, reply.Confidence, nil
}
