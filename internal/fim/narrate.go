package fim

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"numa/internal/ledger"
)

// Narration builds the Spanish surface strings the assistant speaks. All
// figures are interpolated from ledger results; templates never let the
// model produce a number.

// ConfirmWrite phrases a single recorded transaction.
func ConfirmWrite(tx *ledger.Transaction) string {
	switch tx.Type {
	case ledger.TypeIncome:
		return fmt.Sprintf("Listo. Anoté un ingreso de %s por %s.", formatAmount(tx.Amount), tx.Concept)
	case ledger.TypeDebt:
		return fmt.Sprintf("Listo. Anoté una deuda de %s por %s.", formatAmount(tx.Amount), tx.Concept)
	default:
		return fmt.Sprintf("Listo. Anoté %s por %s.", tx.Concept, formatAmount(tx.Amount))
	}
}

// ConfirmBatch phrases a multi-write result.
func ConfirmBatch(txs []*ledger.Transaction) string {
	if len(txs) == 1 {
		return ConfirmWrite(txs[0])
	}
	var total float64
	for _, tx := range txs {
		total += tx.Amount
	}
	return fmt.Sprintf("Procesado: %d gastos (%s).", len(txs), formatAmount(total))
}

// ConfirmVerification phrases a document-backed verification.
func ConfirmVerification(tx *ledger.Transaction) string {
	return fmt.Sprintf("Verificado: %s en %s por %s.", tx.Concept, tx.Merchant, formatAmount(tx.Amount))
}

// NarrateDay phrases a daily summary, split into validated and pending
// figures so provisional money is never presented as settled.
func NarrateDay(day *ledger.DaySummary, period string) string {
	label := periodLabel(period)
	spent := day.Validated.Expense.Total
	pending := day.Provisional.Expense.Total

	if spent == 0 && pending == 0 {
		return fmt.Sprintf("No tienes gastos registrados %s.", label)
	}
	msg := fmt.Sprintf("%s llevas %s validados", capitalize(label), formatAmount(spent))
	if pending > 0 {
		msg += fmt.Sprintf(" y %s por verificar", formatAmount(pending))
	}
	msg += "."
	if income := day.Validated.Income.Total; income > 0 {
		msg += fmt.Sprintf(" Ingresos: %s.", formatAmount(income))
	}
	return msg
}

// NarrateSummary phrases an arbitrary-period aggregation.
func NarrateSummary(validated, pending ledger.Summary, period string) string {
	label := periodLabel(period)
	if validated.Count == 0 && pending.Count == 0 {
		return fmt.Sprintf("No tienes movimientos registrados %s.", label)
	}
	msg := fmt.Sprintf("En %s: %s validados en %d movimientos", label, formatAmount(validated.Total), validated.Count)
	if pending.Count > 0 {
		msg += fmt.Sprintf(", más %s pendientes de verificar", formatAmount(pending.Total))
	}
	return msg + "."
}

func formatAmount(amount float64) string {
	return fmt.Sprintf("$%.2f", amount)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}

func periodLabel(period string) string {
	switch period {
	case "hoy", "":
		return "hoy"
	case "ayer":
		return "ayer"
	case "semana":
		return "esta semana"
	case "mes":
		return "este mes"
	}
	return period
}

// Advisor phrases advice and plans. The model sees only aggregates the
// ledger computed; its reply is trimmed and any failure degrades to a
// deterministic message built from the same aggregates.
type Advisor struct {
	client LLMClient
}

// NewAdvisor wires the model client.
func NewAdvisor(client LLMClient) *Advisor {
	return &Advisor{client: client}
}

const adviceSystemPrompt = `Eres un asesor de finanzas personales en español de México, directo y práctico.
Responde en máximo tres oraciones. Usa ÚNICAMENTE las cifras del contexto; no inventes montos, porcentajes ni fechas.
Devuelve SOLO JSON: {"reply": "..."}`

// Advise answers an advice or planning question over the owner's actual
// figures.
func (a *Advisor) Advise(ctx context.Context, question string, totals []ledger.CategoryTotal, month ledger.Summary) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Gasto del mes: %s en %d movimientos.\n", formatAmount(month.Total), month.Count)
	for _, t := range totals {
		fmt.Fprintf(&sb, "- %s: %s (%d)\n", t.Category, formatAmount(t.Total), t.Count)
	}
	sb.WriteString("\nPregunta: ")
	sb.WriteString(question)

	response, err := a.client.CompleteWithSystem(ctx, adviceSystemPrompt, sb.String())
	if err != nil {
		return a.fallback(totals, month), nil
	}

	raw := extractJSON(response)
	if raw == "" {
		return a.fallback(totals, month), nil
	}
	var reply struct {
		Reply string `json:"reply"`
	}
	if err := json.Unmarshal([]byte(raw), &reply); err != nil || strings.TrimSpace(reply.Reply) == "" {
		return a.fallback(totals, month), nil
	}
	return strings.TrimSpace(reply.Reply), nil
}

func (a *Advisor) fallback(totals []ledger.CategoryTotal, month ledger.Summary) string {
	if month.Count == 0 {
		return "Aún no tengo suficientes movimientos para darte un consejo. Registra tus gastos unos días y vuelve a preguntarme."
	}
	msg := fmt.Sprintf("Este mes llevas %s en %d movimientos.", formatAmount(month.Total), month.Count)
	if len(totals) > 0 {
		msg += fmt.Sprintf(" Tu mayor gasto es %s con %s; ahí está tu mejor oportunidad de recorte.",
			totals[0].Category, formatAmount(totals[0].Total))
	}
	return msg
}
