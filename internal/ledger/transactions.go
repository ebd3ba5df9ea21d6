package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

// CreateProvisional records a new transaction in the provisional state.
// Merchant, category and date are stored when provided; the row may stay
// partial until verification.
func (s *Store) CreateProvisional(ctx context.Context, ownerID string, in CreateInput) (*Transaction, error) {
	if in.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	concept := strings.TrimSpace(in.Concept)
	if concept == "" {
		return nil, ErrInvalidConcept
	}
	typ := in.Type
	if typ == "" {
		typ = TypeExpense
	}
	if !ValidType(typ) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidType, in.Type)
	}

	tx := &Transaction{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Type:      typ,
		Amount:    fromCents(toCents(in.Amount)),
		Concept:   concept,
		Category:  strings.TrimSpace(in.Category),
		Merchant:  strings.TrimSpace(in.Merchant),
		Status:    StatusProvisional,
		CreatedAt: time.Now().UTC(),
	}
	if in.Date != nil {
		d := in.Date.UTC()
		tx.TransactionDate = &d
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (id, owner_id, type, amount_cents, concept, category, merchant, status, transaction_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.OwnerID, string(tx.Type), toCents(tx.Amount), tx.Concept,
		nullable(tx.Category), nullable(tx.Merchant), string(tx.Status),
		nullableDate(tx.TransactionDate), tx.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert transaction: %w", err)
	}

	s.log.Info("provisional transaction created",
		zap.String("id", tx.ID),
		zap.String("type", string(tx.Type)),
		zap.Float64("amount", tx.Amount))
	return tx, nil
}

// VerifyWithDocument moves a provisional transaction to VERIFIED using the
// receipt extraction as ground truth. The document amount overwrites the
// provisional amount; the original concept is preserved.
func (s *Store) VerifyWithDocument(ctx context.Context, id, ownerID string, doc DocumentData) (*Transaction, error) {
	vendor := strings.TrimSpace(doc.Vendor)
	if vendor == "" {
		return nil, ErrMissingMerchant
	}
	if doc.TotalAmount <= 0 {
		return nil, ErrInvalidAmount
	}

	current, err := s.Get(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if current.Status != StatusProvisional {
		return nil, ErrNotProvisional
	}

	// Categorize before the transition so the terminal row lands complete.
	category := s.resolveCategory(ctx, current.Concept, vendor)

	now := time.Now().UTC()
	docDate := doc.Date.UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	// Compare-and-set on status: a concurrent verify that got there first
	// leaves zero rows for this update.
	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET amount_cents = ?, merchant = ?, transaction_date = ?, category = ?,
		    status = ?, verified_at = ?
		WHERE id = ? AND owner_id = ? AND status = ?`,
		toCents(doc.TotalAmount), vendor, docDate.Format(dateLayout), category,
		string(StatusVerified), now,
		id, ownerID, string(StatusProvisional),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to verify transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotProvisional
	}

	s.log.Info("transaction verified with document",
		zap.String("id", id), zap.String("merchant", vendor))
	return s.fetch(ctx, id, ownerID)
}

// VerifyManual moves a provisional transaction to VERIFIED_MANUAL. The row
// must already carry a merchant; verification never weakens that rule.
func (s *Store) VerifyManual(ctx context.Context, id, ownerID string) (*Transaction, error) {
	current, err := s.Get(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if current.Status != StatusProvisional {
		return nil, ErrNotProvisional
	}
	if strings.TrimSpace(current.Merchant) == "" {
		return nil, ErrMissingMerchant
	}

	category := current.Category
	if category == "" {
		category = s.resolveCategory(ctx, current.Concept, current.Merchant)
	}

	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET category = ?, status = ?, verified_at = ?
		WHERE id = ? AND owner_id = ? AND status = ?`,
		category, string(StatusVerifiedManual), now,
		id, ownerID, string(StatusProvisional),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to verify transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotProvisional
	}

	s.log.Info("transaction verified manually", zap.String("id", id))
	return s.fetch(ctx, id, ownerID)
}

// UpdateProvisionalFields patches merchant and/or category on a provisional
// row. Amounts are never touched here; corrections to amounts go through
// document verification.
func (s *Store) UpdateProvisionalFields(ctx context.Context, id, ownerID, merchant, category string) (*Transaction, error) {
	current, err := s.Get(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if current.Status != StatusProvisional {
		return nil, ErrNotProvisional
	}

	if m := strings.TrimSpace(merchant); m != "" {
		current.Merchant = m
	}
	if c := strings.TrimSpace(category); c != "" {
		current.Category = c
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions SET merchant = ?, category = ?
		WHERE id = ? AND owner_id = ? AND status = ?`,
		nullable(current.Merchant), nullable(current.Category),
		id, ownerID, string(StatusProvisional),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotProvisional
	}
	return s.fetch(ctx, id, ownerID)
}

// RecentProvisional returns up to n provisional transactions of the owner,
// newest first. Used to locate targets of follow-up corrections.
func (s *Store) RecentProvisional(ctx context.Context, ownerID string, n int) ([]*Transaction, error) {
	if n <= 0 {
		n = 1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+txColumns+` FROM transactions
		WHERE owner_id = ? AND status = ?
		ORDER BY created_at DESC LIMIT ?`,
		ownerID, string(StatusProvisional), n,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()
	return scanTransactions(rows)
}

// Get fetches a transaction by id, enforcing ownership. A row owned by a
// different tenant surfaces as ErrNotOwner, which callers must render
// exactly like not-found.
func (s *Store) Get(ctx context.Context, id, ownerID string) (*Transaction, error) {
	return s.fetch(ctx, id, ownerID)
}

func (s *Store) fetch(ctx context.Context, id, ownerID string) (*Transaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+txColumns+` FROM transactions WHERE id = ?`, id)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if tx.OwnerID != ownerID {
		return nil, ErrNotOwner
	}
	return tx, nil
}

const txColumns = `id, owner_id, type, amount_cents, concept, category, merchant, status, transaction_date, created_at, verified_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(r rowScanner) (*Transaction, error) {
	var (
		tx       Transaction
		cents    int64
		category sql.NullString
		merchant sql.NullString
		txDate   sql.NullString
		verified sql.NullTime
	)
	err := r.Scan(&tx.ID, &tx.OwnerID, (*string)(&tx.Type), &cents, &tx.Concept,
		&category, &merchant, (*string)(&tx.Status), &txDate, &tx.CreatedAt, &verified)
	if err != nil {
		return nil, err
	}
	tx.Amount = fromCents(cents)
	tx.Category = category.String
	tx.Merchant = merchant.String
	if txDate.Valid && txDate.String != "" {
		if d, err := time.Parse(dateLayout, txDate.String); err == nil {
			tx.TransactionDate = &d
		}
	}
	if verified.Valid {
		t := verified.Time.UTC()
		tx.VerifiedAt = &t
	}
	return &tx, nil
}

func scanTransactions(rows *sql.Rows) ([]*Transaction, error) {
	var out []*Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(dateLayout)
}
