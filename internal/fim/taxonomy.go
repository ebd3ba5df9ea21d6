package fim

import "strings"

// Categories is the closed spending taxonomy. Every categorized transaction
// carries exactly one of these labels.
var Categories = []string{
	"Vivienda",
	"Servicios",
	"Despensa",
	"Transporte",
	"Salud",
	"Educación",
	"Restaurantes",
	"Café/Snacks",
	"Ocio",
	"Compras",
	"Regalos",
	"Deuda",
	"Inversión",
	"Ingreso",
	"Transferencia",
}

// FallbackCategory absorbs anything the taxonomy cannot place.
const FallbackCategory = "Compras"

// AntExpenseLimit is the default pesos threshold under which a small café
// or convenience purchase is an "ant expense". Such purchases are never
// forced into Despensa. Deployments override it via configuration.
const AntExpenseLimit = 200.0

var categoryIndex = func() map[string]string {
	m := make(map[string]string, len(Categories))
	for _, c := range Categories {
		m[normalizeLabel(c)] = c
	}
	return m
}()

func normalizeLabel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	replacer := strings.NewReplacer("á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u")
	return replacer.Replace(s)
}

// ValidCategory reports whether label is in the taxonomy.
func ValidCategory(label string) bool {
	_, ok := categoryIndex[normalizeLabel(label)]
	return ok
}

// CoerceCategory maps a free-form label onto the taxonomy. Exact matches
// (accent and case insensitive) pass through; anything else collapses to
// the fallback bucket.
func CoerceCategory(label string) string {
	if label == "" {
		return FallbackCategory
	}
	if canonical, ok := categoryIndex[normalizeLabel(label)]; ok {
		return canonical
	}
	return FallbackCategory
}

var antHints = []string{
	"cafe", "café", "capuchino", "latte", "espresso", "starbucks",
	"oxxo", "seven", "7-eleven", "galletas", "papitas", "refresco",
	"chicle", "dulce", "snack", "botana",
}

// AntExpense reports whether a small purchase looks like an ant expense:
// under the limit and smelling of café or convenience store. A limit of
// zero or less falls back to AntExpenseLimit.
func AntExpense(amount, limit float64, concept, merchant string) bool {
	if limit <= 0 {
		limit = AntExpenseLimit
	}
	if amount <= 0 || amount >= limit {
		return false
	}
	text := normalizeLabel(concept + " " + merchant)
	for _, hint := range antHints {
		if strings.Contains(text, normalizeLabel(hint)) {
			return true
		}
	}
	return false
}

// applyAntRule corrects a miscategorized small purchase. A classifier that
// dropped an ant expense into Despensa gets overridden to Café/Snacks.
func applyAntRule(category string, amount, limit float64, concept, merchant string) string {
	if !AntExpense(amount, limit, concept, merchant) {
		return category
	}
	if category == "Despensa" || category == "" {
		return "Café/Snacks"
	}
	return category
}
