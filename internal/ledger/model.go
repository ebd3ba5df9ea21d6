// Package ledger owns the financial entities (User, Transaction), the
// PROVISIONAL -> VERIFIED / VERIFIED_MANUAL state machine, and all
// deterministic aggregations. Every query is scoped by owner; the package
// exposes no way to read another tenant's rows.
package ledger

import (
	"math"
	"time"
)

// TransactionType is the kind of financial movement.
type TransactionType string

const (
	TypeExpense TransactionType = "expense"
	TypeIncome  TransactionType = "income"
	TypeDebt    TransactionType = "debt"
)

// ValidType reports whether t is a known transaction type.
func ValidType(t TransactionType) bool {
	switch t {
	case TypeExpense, TypeIncome, TypeDebt:
		return true
	}
	return false
}

// TransactionStatus is the lifecycle state of a transaction.
// Transitions: PROVISIONAL -> VERIFIED, PROVISIONAL -> VERIFIED_MANUAL.
// VERIFIED and VERIFIED_MANUAL are terminal.
type TransactionStatus string

const (
	StatusProvisional    TransactionStatus = "provisional"
	StatusVerified       TransactionStatus = "verified"
	StatusVerifiedManual TransactionStatus = "verified_manual"
)

// Terminal reports whether s is a terminal status.
func (s TransactionStatus) Terminal() bool {
	return s == StatusVerified || s == StatusVerifiedManual
}

// User owns financial data. The password hash is opaque to the ledger.
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	CreatedAt    time.Time
}

// Transaction is an atomic financial movement.
type Transaction struct {
	ID              string            `json:"id"`
	OwnerID         string            `json:"owner_id"`
	Type            TransactionType   `json:"type"`
	Amount          float64           `json:"amount"`
	Concept         string            `json:"concept"`
	Category        string            `json:"category,omitempty"`
	Merchant        string            `json:"merchant,omitempty"`
	Status          TransactionStatus `json:"status"`
	TransactionDate *time.Time        `json:"transaction_date,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	VerifiedAt      *time.Time        `json:"verified_at,omitempty"`
}

// CreateInput carries the fields of a new provisional transaction. Merchant,
// category and date are optional; a partial provisional is allowed.
type CreateInput struct {
	Type     TransactionType
	Amount   float64
	Concept  string
	Merchant string
	Category string
	Date     *time.Time
}

// DocumentData is the authoritative extraction from a receipt. The document
// amount is ground truth and overwrites any voice-derived amount.
type DocumentData struct {
	Vendor      string
	Date        time.Time
	TotalAmount float64
}

// Filter narrows ledger queries. Zero values mean "no constraint".
// Period bounds apply to created_at.
type Filter struct {
	From     time.Time
	To       time.Time
	Category string
	Statuses []TransactionStatus
	Type     TransactionType
}

// Summary is a deterministic aggregation result.
type Summary struct {
	Total float64 `json:"total"`
	Count int     `json:"count"`
}

// CategoryTotal is one row of a per-category breakdown.
type CategoryTotal struct {
	Category string  `json:"category"`
	Total    float64 `json:"total"`
	Count    int     `json:"count"`
}

// DaySummary groups the four quadrants of a single day.
type DaySummary struct {
	Validated   TypedSummary `json:"validated"`
	Provisional TypedSummary `json:"provisional"`
}

// TypedSummary splits a summary by movement direction.
type TypedSummary struct {
	Income  Summary `json:"income"`
	Expense Summary `json:"expense"`
}

// Amounts are stored as integer centavos so aggregations stay exact.

func toCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func fromCents(cents int64) float64 {
	return float64(cents) / 100
}
