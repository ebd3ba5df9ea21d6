// Package orchestrator routes resolved intents to the ledger and shapes the
// reply envelope. It is the only place where perception output meets stored
// money, and the only place allowed to phrase results for the user.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"numa/internal/fim"
	"numa/internal/ledger"
	"numa/internal/logging"
)

// Envelope is the uniform reply shape of every interaction.
type Envelope struct {
	Type    string `json:"type"` // transaction, chat, error
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

const (
	EnvelopeTransaction = "transaction"
	EnvelopeChat        = "chat"
	EnvelopeError       = "error"
)

const (
	msgDeadline     = "Me tardé demasiado procesando tu mensaje. Intenta de nuevo."
	msgUnintelligib = "No pude entender el audio. ¿Me lo repites?"
	msgInternal     = "Algo salió mal de mi lado. Intenta de nuevo en un momento."
	msgNoPending    = "No encontré ningún registro pendiente para actualizar."
	msgNeedMerchant = "Para confirmarlo necesito saber en qué comercio fue."
	msgWriteAborted = "El resto no se pudo registrar, intenta de nuevo."
)

// Ledger is the slice of the store the orchestrator consumes.
type Ledger interface {
	CreateProvisional(ctx context.Context, ownerID string, in ledger.CreateInput) (*ledger.Transaction, error)
	VerifyWithDocument(ctx context.Context, id, ownerID string, doc ledger.DocumentData) (*ledger.Transaction, error)
	VerifyManual(ctx context.Context, id, ownerID string) (*ledger.Transaction, error)
	UpdateProvisionalFields(ctx context.Context, id, ownerID, merchant, category string) (*ledger.Transaction, error)
	RecentProvisional(ctx context.Context, ownerID string, n int) ([]*ledger.Transaction, error)
	SumByOwner(ctx context.Context, ownerID string, f ledger.Filter) (ledger.Summary, error)
	SumByCategory(ctx context.Context, ownerID string, f ledger.Filter) ([]ledger.CategoryTotal, error)
	DailySummary(ctx context.Context, ownerID string, day time.Time) (*ledger.DaySummary, error)
}

// Classifier resolves text into intent records.
type Classifier interface {
	Classify(ctx context.Context, text string) ([]fim.IntentRecord, error)
}

// Advisor phrases advice over ledger aggregates.
type Advisor interface {
	Advise(ctx context.Context, question string, totals []ledger.CategoryTotal, month ledger.Summary) (string, error)
}

// DocumentAnalyzer extracts receipt data.
type DocumentAnalyzer interface {
	Analyze(ctx context.Context, data []byte, mimeType string) (ledger.DocumentData, error)
}

// Orchestrator dispatches intents. Every entry point bounds its work with
// the request deadline.
type Orchestrator struct {
	store       Ledger
	classifier  Classifier
	transcriber fim.Transcriber
	analyzer    DocumentAnalyzer
	advisor     Advisor
	log         *zap.Logger

	deadline            time.Duration
	confidenceThreshold float64
	now                 func() time.Time
}

// Config wires the orchestrator dependencies.
type Config struct {
	Store               Ledger
	Classifier          Classifier
	Transcriber         fim.Transcriber
	Analyzer            DocumentAnalyzer
	Advisor             Advisor
	Logger              *zap.Logger
	Deadline            time.Duration
	ConfidenceThreshold float64
}

// New builds an orchestrator.
func New(cfg Config) *Orchestrator {
	deadline := cfg.Deadline
	if deadline <= 0 {
		deadline = 8 * time.Second
	}
	threshold := cfg.ConfidenceThreshold
	if threshold <= 0 {
		threshold = 0.7
	}
	return &Orchestrator{
		store:               cfg.Store,
		classifier:          cfg.Classifier,
		transcriber:         cfg.Transcriber,
		analyzer:            cfg.Analyzer,
		advisor:             cfg.Advisor,
		log:                 logging.For(cfg.Logger, logging.CategoryOrchestrator),
		deadline:            deadline,
		confidenceThreshold: threshold,
		now:                 time.Now,
	}
}

// HandleVoice transcribes an utterance and processes it like text.
func (o *Orchestrator) HandleVoice(ctx context.Context, ownerID string, audio []byte, mimeType string) Envelope {
	ctx, cancel := context.WithTimeout(ctx, o.deadline)
	defer cancel()

	transcript, err := o.transcriber.Transcribe(ctx, audio, mimeType)
	if err != nil {
		if errors.Is(err, fim.ErrUnintelligibleAudio) {
			return Envelope{Type: EnvelopeError, Message: msgUnintelligib}
		}
		return o.failure(ctx, "transcription failed", err)
	}
	o.log.Debug("voice transcribed",
		zap.Int("audio_bytes", len(audio)),
		zap.Float64("stt_confidence", transcript.Confidence))
	return o.handle(ctx, ownerID, transcript.Text)
}

// HandleText processes a typed message.
func (o *Orchestrator) HandleText(ctx context.Context, ownerID, text string) Envelope {
	ctx, cancel := context.WithTimeout(ctx, o.deadline)
	defer cancel()
	return o.handle(ctx, ownerID, text)
}

func (o *Orchestrator) handle(ctx context.Context, ownerID, text string) Envelope {
	records, err := o.classifier.Classify(ctx, text)
	if err != nil {
		if errors.Is(err, fim.ErrEmptyInput) {
			return Envelope{Type: EnvelopeError, Message: msgUnintelligib}
		}
		return o.failure(ctx, "classification failed", err)
	}
	return o.dispatch(ctx, ownerID, records)
}

// dispatch processes the resolved intents in order. Every record runs its
// handler; a question or a confirmation mixed into the same utterance never
// skips a write, and committed writes are never dropped from the envelope.
func (o *Orchestrator) dispatch(ctx context.Context, ownerID string, records []fim.IntentRecord) Envelope {
	var (
		written []*ledger.Transaction
		replies []Envelope
		// Steer and clarify replies only speak when nothing else answered.
		deferred []Envelope
	)

loop:
	for i, rec := range records {
		switch rec.Intent {
		case fim.IntentWriteLog:
			tx, err := o.write(ctx, ownerID, rec)
			if err != nil {
				o.log.Warn("write aborted mid-batch",
					zap.Int("position", i), zap.Int("committed", len(written)), zap.Error(err))
				if len(written) == 0 && len(replies) == 0 {
					return Envelope{Type: EnvelopeError, Message: msgInternal}
				}
				replies = append(replies, Envelope{Type: EnvelopeChat, Message: msgWriteAborted})
				break loop
			}
			written = append(written, tx)

		case fim.IntentReadQuery:
			env := o.readQuery(ctx, ownerID, rec)
			replies = append(replies, env)
			if env.Type == EnvelopeError {
				break loop
			}

		case fim.IntentConfirmUpdate:
			env := o.confirmUpdate(ctx, ownerID, rec)
			replies = append(replies, env)
			if env.Type == EnvelopeError {
				break loop
			}

		case fim.IntentAdvice, fim.IntentPlan:
			env := o.advise(ctx, ownerID, rec)
			replies = append(replies, env)
			if env.Type == EnvelopeError {
				break loop
			}

		case fim.IntentSteer, fim.IntentClarify:
			deferred = append(deferred, Envelope{Type: EnvelopeChat, Message: rec.Reply})
		}
	}

	return combine(written, replies, deferred)
}

// combine folds committed writes and handler replies into one envelope.
// Writes take the envelope type; their confirmation leads the message and
// any read or advice answer follows it.
func combine(written []*ledger.Transaction, replies, deferred []Envelope) Envelope {
	if len(written) == 0 {
		switch len(replies) {
		case 0:
			if len(deferred) > 0 {
				return deferred[0]
			}
			return Envelope{Type: EnvelopeChat, Message: msgUnintelligib}
		case 1:
			return replies[0]
		}
		return Envelope{Type: replies[0].Type, Message: joinMessages(replies), Data: replies[0].Data}
	}

	env := Envelope{
		Type:    EnvelopeTransaction,
		Message: fim.ConfirmBatch(written),
		Data:    written,
	}
	if extra := joinMessages(replies); extra != "" {
		env.Message += " " + extra
	}
	return env
}

func joinMessages(replies []Envelope) string {
	parts := make([]string, 0, len(replies))
	for _, r := range replies {
		if r.Message != "" {
			parts = append(parts, r.Message)
		}
	}
	return strings.Join(parts, " ")
}

func (o *Orchestrator) write(ctx context.Context, ownerID string, rec fim.IntentRecord) (*ledger.Transaction, error) {
	in := ledger.CreateInput{
		Amount:   rec.Entities.Amount,
		Concept:  rec.Entities.Concept,
		Merchant: rec.Entities.Merchant,
		Type:     txType(rec.Entities.TxType),
	}
	// The extracted category rides along only when the motor was sure.
	if rec.Confidence >= o.confidenceThreshold {
		in.Category = rec.Entities.Category
	}
	return o.store.CreateProvisional(ctx, ownerID, in)
}

func (o *Orchestrator) readQuery(ctx context.Context, ownerID string, rec fim.IntentRecord) Envelope {
	period := rec.Entities.Period
	switch period {
	case "", "hoy", "ayer":
		day := o.now().UTC()
		if period == "ayer" {
			day = day.AddDate(0, 0, -1)
		}
		summary, err := o.store.DailySummary(ctx, ownerID, day)
		if err != nil {
			return o.failure(ctx, "daily summary failed", err)
		}
		return Envelope{
			Type:    EnvelopeChat,
			Message: fim.NarrateDay(summary, period),
			Data:    summary,
		}
	}

	from, to := periodRange(period, o.now().UTC())
	base := ledger.Filter{From: from, To: to, Category: rec.Entities.Category}

	validatedFilter := base
	validatedFilter.Statuses = ledger.ValidatedStatuses
	validated, err := o.store.SumByOwner(ctx, ownerID, validatedFilter)
	if err != nil {
		return o.failure(ctx, "summary failed", err)
	}

	pendingFilter := base
	pendingFilter.Statuses = []ledger.TransactionStatus{ledger.StatusProvisional}
	pending, err := o.store.SumByOwner(ctx, ownerID, pendingFilter)
	if err != nil {
		return o.failure(ctx, "summary failed", err)
	}

	return Envelope{
		Type:    EnvelopeChat,
		Message: fim.NarrateSummary(validated, pending, period),
		Data: map[string]ledger.Summary{
			"validated": validated,
			"pending":   pending,
		},
	}
}

// confirmUpdate targets the most recent provisional row. With slot data it
// patches fields; without, it verifies the row manually.
func (o *Orchestrator) confirmUpdate(ctx context.Context, ownerID string, rec fim.IntentRecord) Envelope {
	recent, err := o.store.RecentProvisional(ctx, ownerID, 1)
	if err != nil {
		return o.failure(ctx, "lookup failed", err)
	}
	if len(recent) == 0 {
		return Envelope{Type: EnvelopeChat, Message: msgNoPending}
	}
	target := recent[0]

	if rec.Entities.Merchant != "" || rec.Entities.Category != "" {
		category := rec.Entities.Category
		if category != "" {
			category = fim.CoerceCategory(category)
		}
		updated, err := o.store.UpdateProvisionalFields(ctx, target.ID, ownerID, rec.Entities.Merchant, category)
		if err != nil {
			return o.failure(ctx, "update failed", err)
		}
		return Envelope{
			Type:    EnvelopeTransaction,
			Message: fmt.Sprintf("Actualizado: %s por %s.", updated.Concept, formatPesos(updated.Amount)),
			Data:    updated,
		}
	}

	verified, err := o.store.VerifyManual(ctx, target.ID, ownerID)
	if err != nil {
		if errors.Is(err, ledger.ErrMissingMerchant) {
			return Envelope{Type: EnvelopeChat, Message: msgNeedMerchant}
		}
		return o.failure(ctx, "manual verify failed", err)
	}
	return Envelope{
		Type:    EnvelopeTransaction,
		Message: fmt.Sprintf("Confirmado: %s por %s.", verified.Concept, formatPesos(verified.Amount)),
		Data:    verified,
	}
}

// advise answers with the model constrained to ledger aggregates. Every
// number in the reply context comes from a SQL aggregation.
func (o *Orchestrator) advise(ctx context.Context, ownerID string, rec fim.IntentRecord) Envelope {
	from, to := periodRange("mes", o.now().UTC())
	filter := ledger.Filter{From: from, To: to, Statuses: ledger.ValidatedStatuses, Type: ledger.TypeExpense}

	month, err := o.store.SumByOwner(ctx, ownerID, filter)
	if err != nil {
		return o.failure(ctx, "advice aggregation failed", err)
	}
	totals, err := o.store.SumByCategory(ctx, ownerID, filter)
	if err != nil {
		return o.failure(ctx, "advice aggregation failed", err)
	}

	question := rec.Entities.Question
	if question == "" {
		question = "Dame un consejo sobre mis gastos."
	}
	reply, err := o.advisor.Advise(ctx, question, totals, month)
	if err != nil {
		return o.failure(ctx, "advice failed", err)
	}
	return Envelope{Type: EnvelopeChat, Message: reply}
}

// VerifyWithDocument runs the receipt extraction and the ledger transition.
func (o *Orchestrator) VerifyWithDocument(ctx context.Context, ownerID, txID string, document []byte, mimeType string) (Envelope, error) {
	ctx, cancel := context.WithTimeout(ctx, o.deadline)
	defer cancel()

	doc, err := o.analyzer.Analyze(ctx, document, mimeType)
	if err != nil {
		return Envelope{}, err
	}
	tx, err := o.store.VerifyWithDocument(ctx, txID, ownerID, doc)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		Type:    EnvelopeTransaction,
		Message: fim.ConfirmVerification(tx),
		Data:    tx,
	}, nil
}

func (o *Orchestrator) failure(ctx context.Context, what string, err error) Envelope {
	o.log.Error(what, zap.Error(err))
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return Envelope{Type: EnvelopeError, Message: msgDeadline}
	}
	return Envelope{Type: EnvelopeError, Message: msgInternal}
}

func txType(s string) ledger.TransactionType {
	switch s {
	case "income":
		return ledger.TypeIncome
	case "debt":
		return ledger.TypeDebt
	}
	return ledger.TypeExpense
}

func formatPesos(amount float64) string {
	return fmt.Sprintf("$%.2f", amount)
}
