package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// buildWhere renders the owner filter plus optional constraints. The owner
// predicate is always first and never optional.
func buildWhere(ownerID string, f Filter) (string, []any) {
	clauses := []string{"owner_id = ?"}
	args := []any{ownerID}

	if !f.From.IsZero() {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, f.From.UTC())
	}
	if !f.To.IsZero() {
		clauses = append(clauses, "created_at < ?")
		args = append(args, f.To.UTC())
	}
	if f.Category != "" {
		clauses = append(clauses, "category = ?")
		args = append(args, f.Category)
	}
	if f.Type != "" {
		clauses = append(clauses, "type = ?")
		args = append(args, string(f.Type))
	}
	if len(f.Statuses) > 0 {
		placeholders := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ", ")))
	}

	return strings.Join(clauses, " AND "), args
}

// ListByOwner returns the owner's transactions matching the filter, ordered
// by creation time.
func (s *Store) ListByOwner(ctx context.Context, ownerID string, f Filter) ([]*Transaction, error) {
	where, args := buildWhere(ownerID, f)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE `+where+` ORDER BY created_at ASC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()
	return scanTransactions(rows)
}

// SumByOwner aggregates total and count over the filtered rows. The result
// is deterministic: sums run over integer centavos.
func (s *Store) SumByOwner(ctx context.Context, ownerID string, f Filter) (Summary, error) {
	where, args := buildWhere(ownerID, f)
	var (
		cents int64
		count int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0), COUNT(*) FROM transactions WHERE `+where,
		args...,
	).Scan(&cents, &count)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to aggregate transactions: %w", err)
	}
	return Summary{Total: fromCents(cents), Count: count}, nil
}

// SumByCategory returns per-category totals over the filtered rows,
// largest first. Uncategorized rows are excluded.
func (s *Store) SumByCategory(ctx context.Context, ownerID string, f Filter) ([]CategoryTotal, error) {
	where, args := buildWhere(ownerID, f)
	rows, err := s.db.QueryContext(ctx, `
		SELECT category, SUM(amount_cents), COUNT(*)
		FROM transactions
		WHERE `+where+` AND category IS NOT NULL
		GROUP BY category
		ORDER BY SUM(amount_cents) DESC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate by category: %w", err)
	}
	defer rows.Close()

	var out []CategoryTotal
	for rows.Next() {
		var (
			ct    CategoryTotal
			cents int64
		)
		if err := rows.Scan(&ct.Category, &cents, &ct.Count); err != nil {
			return nil, fmt.Errorf("failed to scan category total: %w", err)
		}
		ct.Total = fromCents(cents)
		out = append(out, ct)
	}
	return out, rows.Err()
}

// ValidatedStatuses are the terminal states counted in validated figures.
var ValidatedStatuses = []TransactionStatus{StatusVerified, StatusVerifiedManual}

// DailySummary computes the validated/provisional x income/expense quadrants
// for one calendar day (UTC). The four aggregations run concurrently.
func (s *Store) DailySummary(ctx context.Context, ownerID string, day time.Time) (*DaySummary, error) {
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	quadrant := func(dst *Summary, statuses []TransactionStatus, typ TransactionType) func() error {
		return func() error {
			sum, err := s.SumByOwner(ctx, ownerID, Filter{
				From: from, To: to, Statuses: statuses, Type: typ,
			})
			if err != nil {
				return err
			}
			*dst = sum
			return nil
		}
	}

	var out DaySummary
	provisional := []TransactionStatus{StatusProvisional}

	g, _ := errgroup.WithContext(ctx)
	g.Go(quadrant(&out.Validated.Income, ValidatedStatuses, TypeIncome))
	g.Go(quadrant(&out.Validated.Expense, ValidatedStatuses, TypeExpense))
	g.Go(quadrant(&out.Provisional.Income, provisional, TypeIncome))
	g.Go(quadrant(&out.Provisional.Expense, provisional, TypeExpense))
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &out, nil
}
