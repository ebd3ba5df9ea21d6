package fim

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"numa/internal/ledger"
)

// ErrUnreadableDocument indicates the receipt could not be extracted.
var ErrUnreadableDocument = errors.New("document could not be read")

// DocumentAnalyzer extracts vendor, date and total from a receipt image or
// PDF. The extracted amount is the ground truth for verification.
type DocumentAnalyzer struct {
	client VisionClient
}

// NewDocumentAnalyzer wires the vision-capable model client.
func NewDocumentAnalyzer(client VisionClient) *DocumentAnalyzer {
	return &DocumentAnalyzer{client: client}
}

const documentSystemPrompt = `Extrae los datos de este comprobante de compra (ticket, recibo o factura).
Devuelve SOLO JSON: {"vendor": "nombre del comercio", "date": "YYYY-MM-DD", "total_amount": 0.0}
El total es el monto final pagado, con propina e impuestos incluidos.
Si un campo no se puede leer, déjalo vacío o en cero. No inventes datos.`

type documentReply struct {
	Vendor      string  `json:"vendor"`
	Date        string  `json:"date"`
	TotalAmount float64 `json:"total_amount"`
}

// Analyze extracts structured data from a receipt. Vendor and total are
// mandatory; a missing date falls back to today.
func (a *DocumentAnalyzer) Analyze(ctx context.Context, data []byte, mimeType string) (ledger.DocumentData, error) {
	if len(data) == 0 {
		return ledger.DocumentData{}, ErrUnreadableDocument
	}

	response, err := a.client.CompleteWithMedia(ctx, documentSystemPrompt,
		"Extrae vendor, date y total_amount del comprobante.", mimeType, data)
	if err != nil {
		return ledger.DocumentData{}, fmt.Errorf("document extraction failed: %w", err)
	}

	raw := extractJSON(response)
	if raw == "" {
		return ledger.DocumentData{}, ErrUnreadableDocument
	}
	var reply documentReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return ledger.DocumentData{}, fmt.Errorf("%w: %v", ErrUnreadableDocument, err)
	}

	vendor := strings.TrimSpace(reply.Vendor)
	if vendor == "" || reply.TotalAmount <= 0 {
		return ledger.DocumentData{}, ErrUnreadableDocument
	}

	date := time.Now().UTC()
	if reply.Date != "" {
		if parsed, err := time.Parse("2006-01-02", reply.Date); err == nil {
			date = parsed
		}
	}

	return ledger.DocumentData{
		Vendor:      vendor,
		Date:        date,
		TotalAmount: reply.TotalAmount,
	}, nil
}
