package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/minipay/internal/model"
)

// PostgresPaymentSessionRepo はPostgreSQLを使用した入金セッションリポジトリ。
// 遷移系の操作はすべて `WHERE status = 'initiated'` のガード付きUPDATEで、
// 終端状態への再遷移はDBレベルで不可能になっている。
type PostgresPaymentSessionRepo struct {
	db *sql.DB
}

// NewPostgresPaymentSessionRepo はPostgresPaymentSessionRepoを生成する。
func NewPostgresPaymentSessionRepo(db *sql.DB) *PostgresPaymentSessionRepo {
	return &PostgresPaymentSessionRepo{db: db}
}

// Create は入金セッションをinitiatedで作成する。
func (r *PostgresPaymentSessionRepo) Create(ctx context.Context, session *model.PaymentSession) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO payment_sessions (id, user_id, amount, currency, invoice_number, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		session.ID, session.UserID, session.Amount, session.Currency,
		session.InvoiceNumber, string(session.Status), session.CreatedAt, session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment session: %w", err)
	}
	return nil
}

// FindByID は指定IDの入金セッションを取得する。見つからない場合はnilを返す。
func (r *PostgresPaymentSessionRepo) FindByID(ctx context.Context, id string) (*model.PaymentSession, error) {
	session, err := scanPaymentSession(r.db.QueryRowContext(ctx,
		`SELECT id, user_id, amount, currency, invoice_number, status, failure_reason, trx_id, created_at, updated_at
		 FROM payment_sessions WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find payment session: %w", err)
	}
	return session, nil
}

// ListByUserID はユーザーの入金セッションを作成順（古い順）で返す。
func (r *PostgresPaymentSessionRepo) ListByUserID(ctx context.Context, userID string) ([]*model.PaymentSession, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, amount, currency, invoice_number, status, failure_reason, trx_id, created_at, updated_at
		 FROM payment_sessions
		 WHERE user_id = $1
		 ORDER BY created_at ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*model.PaymentSession
	for rows.Next() {
		session, err := scanPaymentSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payment sessions: %w", err)
	}

	return sessions, nil
}

// MarkFailed はinitiatedのセッションをfailedに遷移させる。
// 遷移が適用された場合はtrueを返す。すでに終端状態の場合はfalse。
func (r *PostgresPaymentSessionRepo) MarkFailed(ctx context.Context, id string, reason model.FailureReason) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE payment_sessions
		 SET status = $2, failure_reason = $3, updated_at = $4
		 WHERE id = $1 AND status = $5`,
		id, string(model.PaymentStatusFailed), string(reason), time.Now(), string(model.PaymentStatusInitiated),
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark payment session failed: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return affected == 1, nil
}

// CompleteAndCredit はinitiatedのセッションをcompletedに遷移させ、
// 同一トランザクションで台帳に記帳する。遷移が適用された場合はtrueを返す。
func (r *PostgresPaymentSessionRepo) CompleteAndCredit(ctx context.Context, id, trxID string, entry *model.LedgerEntry) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE payment_sessions
		 SET status = $2, trx_id = $3, updated_at = $4
		 WHERE id = $1 AND status = $5`,
		id, string(model.PaymentStatusCompleted), trxID, time.Now(), string(model.PaymentStatusInitiated),
	)
	if err != nil {
		return false, fmt.Errorf("failed to complete payment session: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		// すでに終端状態。記帳せずにロールバックする（冪等なno-op）。
		return false, nil
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO ledger_entries (id, user_id, payment_id, amount, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		entry.ID, entry.UserID, entry.PaymentID, entry.Amount, entry.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return true, nil
}

// rowScanner はsql.Rowとsql.Rowsに共通のScanインターフェース。
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanPaymentSession は1行分の入金セッションをスキャンする。
func scanPaymentSession(row rowScanner) (*model.PaymentSession, error) {
	session := &model.PaymentSession{}
	var status, failureReason string
	err := row.Scan(
		&session.ID, &session.UserID, &session.Amount, &session.Currency,
		&session.InvoiceNumber, &status, &failureReason, &session.TrxID,
		&session.CreatedAt, &session.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	session.Status = model.PaymentStatus(status)
	session.FailureReason = model.FailureReason(failureReason)
	return session, nil
}

// compile-time interface check
var _ PaymentSessionRepository = (*PostgresPaymentSessionRepo)(nil)
