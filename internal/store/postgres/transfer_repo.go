package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/xndrbrgs/pampampay-reconciler/internal/domain/model"
	"github.com/xndrbrgs/pampampay-reconciler/internal/store"
)

// transferTables maps each provider to its transfer table. The tables are
// structurally identical; the map doubles as an identifier allowlist so no
// request-derived string is ever interpolated into SQL.
var transferTables = map[model.Provider]string{
	model.ProviderStripe:   "transfers_stripe",
	model.ProviderCoinbase: "transfers_coinbase",
	model.ProviderPayPal:   "transfers_paypal",
	model.ProviderBTCPay:   "transfers_btcpay",
	model.ProviderSquare:   "transfers_square",
}

type TransferRepo struct {
	db *DB
}

func NewTransferRepo(db *DB) *TransferRepo {
	return &TransferRepo{db: db}
}

func tableFor(provider model.Provider) (string, error) {
	table, ok := transferTables[provider]
	if !ok {
		return "", fmt.Errorf("no transfer table for provider %q", provider)
	}
	return table, nil
}

func (r *TransferRepo) CreatePending(ctx context.Context, t *model.Transfer) error {
	table, err := tableFor(t.Provider)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	_, err = r.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (
			id, amount_minor, currency, description,
			sender_id, receiver_id, sender_email,
			status, external_reference, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
	`, table),
		t.ID, t.AmountMinor, t.Currency, t.Description,
		t.SenderID, t.ReceiverID, t.SenderEmail,
		model.StatusPending, t.ExternalReference,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return store.ErrDuplicateExternalReference
		}
		return fmt.Errorf("insert transfer: %w", err)
	}
	return nil
}

func (r *TransferRepo) FindByExternalReference(ctx context.Context, provider model.Provider, externalRef string) (*model.Transfer, error) {
	table, err := tableFor(provider)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	t := model.Transfer{Provider: provider}
	err = r.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT id, amount_minor, currency, description,
		       sender_id, receiver_id, sender_email,
		       status, external_reference, created_at, updated_at
		FROM %s
		WHERE external_reference = $1
	`, table), externalRef).Scan(
		&t.ID, &t.AmountMinor, &t.Currency, &t.Description,
		&t.SenderID, &t.ReceiverID, &t.SenderEmail,
		&t.Status, &t.ExternalReference, &t.CreatedAt, &t.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find transfer by external reference: %w", err)
	}
	return &t, nil
}

// ApplyTransition moves the transfer to target in a single conditional update.
// The allowed-from set is evaluated server-side against the stored row, so two
// racing webhook deliveries can never both transition the same transfer.
func (r *TransferRepo) ApplyTransition(ctx context.Context, provider model.Provider, id string, target model.TransferStatus, allowedFrom []model.TransferStatus) (store.TransitionResult, error) {
	table, err := tableFor(provider)
	if err != nil {
		return store.TransitionResult{}, err
	}

	from := make([]string, len(allowedFrom))
	for i, s := range allowedFrom {
		from[i] = string(s)
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s
		SET status = $1, updated_at = now()
		WHERE id = $2 AND status <> $1 AND status = ANY($3)
	`, table), target, id, pq.Array(from))
	if err != nil {
		return store.TransitionResult{}, fmt.Errorf("apply transition: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return store.TransitionResult{}, fmt.Errorf("apply transition rows affected: %w", err)
	}
	return store.TransitionResult{Transitioned: affected > 0}, nil
}

func (r *TransferRepo) ListByStatus(ctx context.Context, provider model.Provider, status model.TransferStatus) ([]model.Transfer, error) {
	table, err := tableFor(provider)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, amount_minor, currency, description,
		       sender_id, receiver_id, sender_email,
		       status, external_reference, created_at, updated_at
		FROM %s
		WHERE status = $1
		ORDER BY created_at DESC, id ASC
	`, table), status)
	if err != nil {
		return nil, fmt.Errorf("list transfers by status: %w", err)
	}
	defer rows.Close()

	var transfers []model.Transfer
	for rows.Next() {
		t := model.Transfer{Provider: provider}
		if err := rows.Scan(
			&t.ID, &t.AmountMinor, &t.Currency, &t.Description,
			&t.SenderID, &t.ReceiverID, &t.SenderEmail,
			&t.Status, &t.ExternalReference, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan transfer: %w", err)
		}
		transfers = append(transfers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transfers: %w", err)
	}
	return transfers, nil
}

func (r *TransferRepo) CountPendingOlderThan(ctx context.Context, provider model.Provider, cutoff time.Time) (int, error) {
	table, err := tableFor(provider)
	if err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	var count int
	err = r.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COUNT(*) FROM %s WHERE status = $1 AND created_at < $2
	`, table), model.StatusPending, cutoff).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count stale pending transfers: %w", err)
	}
	return count, nil
}
