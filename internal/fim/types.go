// Package fim is the Financial Intent Motor: the perception layer that turns
// raw audio or text into structured financial intents. It owns the LLM and
// speech clients; it never touches the ledger.
package fim

import "errors"

// Intent is the closed discriminator of what the user wants. The
// orchestrator dispatches on it; no other values exist.
type Intent string

const (
	IntentWriteLog      Intent = "WRITE_LOG"
	IntentReadQuery     Intent = "READ_QUERY"
	IntentConfirmUpdate Intent = "CONFIRM_UPDATE"
	IntentAdvice        Intent = "ADVICE"
	IntentPlan          Intent = "PLAN"
	IntentSteer         Intent = "STEER"
	IntentClarify       Intent = "CLARIFY"
)

// SubIntent refines a STEER: a social nicety gets a different redirect
// than a system command the assistant cannot execute from a chat turn.
type SubIntent string

const (
	SubIntentSocial SubIntent = "SOCIAL"
	SubIntentMeta   SubIntent = "META"
)

// ValidIntent reports whether i is a known intent.
func ValidIntent(i Intent) bool {
	switch i {
	case IntentWriteLog, IntentReadQuery, IntentConfirmUpdate,
		IntentAdvice, IntentPlan, IntentSteer, IntentClarify:
		return true
	}
	return false
}

// Entities carries the slots extracted from one utterance. Zero values mean
// the slot was not mentioned.
type Entities struct {
	Amount   float64 `json:"amount,omitempty"`
	Concept  string  `json:"concept,omitempty"`
	Merchant string  `json:"merchant,omitempty"`
	Category string  `json:"category,omitempty"`
	TxType   string  `json:"tx_type,omitempty"`
	Period   string  `json:"period,omitempty"`
	Question string  `json:"question,omitempty"`
}

// IntentRecord is one resolved intent. A single utterance can yield several
// records ("300 de tacos y 150 de uber" yields two WRITE_LOGs, in order).
type IntentRecord struct {
	Intent     Intent    `json:"intent"`
	SubIntent  SubIntent `json:"sub_intent,omitempty"`
	Confidence float64   `json:"confidence"`
	Entities   Entities  `json:"entities"`
	// Reply carries a short Spanish message for STEER and CLARIFY.
	Reply string `json:"reply,omitempty"`
}

var (
	// ErrUnintelligibleAudio indicates speech recognition produced no
	// usable transcript.
	ErrUnintelligibleAudio = errors.New("audio could not be transcribed")

	// ErrEmptyInput indicates there was nothing to classify.
	ErrEmptyInput = errors.New("empty input")

	// ErrMalformedIntent indicates the model reply could not be decoded
	// into intent records.
	ErrMalformedIntent = errors.New("malformed intent payload")
)
