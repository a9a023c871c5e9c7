package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fete/internal/db"
	"fete/internal/order/models"
	id "fete/pkg/domain"
	"fete/pkg/platform/sentinel"
	"fete/pkg/platform/tx"
)

// PostgresStore persists orders in PostgreSQL. Calls join a surrounding
// transaction when the context carries one (pkg/platform/tx).
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(pool *sql.DB) *PostgresStore {
	return &PostgresStore{db: pool}
}

const orderColumns = `id, order_number, user_id, plan_code, template_id, amount_cents, status,
	granted_standard_capacity, granted_test_capacity, payment_reference, rejection_reason,
	approved_at, approved_by, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := tx.QuerierFrom(ctx, s.db).ExecContext(ctx, query,
		order.ID.String(), order.OrderNumber, order.UserID.String(), order.PlanCode,
		order.TemplateID.String(), order.AmountCents, order.Status,
		order.GrantedStandardCapacity, order.GrantedTestCapacity,
		nullString(order.PaymentReference), nullString(order.RejectionReason),
		order.ApprovedAt, nullAdminID(order.ApprovedBy),
		order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, orderID id.OrderID) (*models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	order, err := scanOrder(tx.QuerierFrom(ctx, s.db).QueryRowContext(ctx, query, orderID.String()))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find order: %w", err)
	}
	return order, nil
}

func (s *PostgresStore) ApprovedPlan(ctx context.Context, userID id.UserID) (models.PlanCode, bool, error) {
	query := `
		SELECT plan_code FROM orders
		WHERE user_id = $1 AND status = $2
		ORDER BY created_at ASC
		LIMIT 1
	`
	var plan models.PlanCode
	err := tx.QuerierFrom(ctx, s.db).QueryRowContext(ctx, query, userID.String(), models.StatusApproved).Scan(&plan)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, fmt.Errorf("find approved plan: %w", err)
	}
	return plan, true, nil
}

// Execute locks the row with FOR UPDATE for the duration of validate and
// mutate, so a concurrent transition on the same order blocks until this one
// commits and then sees the new status. Outside a surrounding transaction it
// opens its own.
func (s *PostgresStore) Execute(ctx context.Context, orderID id.OrderID, validate func(*models.Order) error, mutate func(*models.Order)) (*models.Order, error) {
	if _, ok := tx.From(ctx); ok {
		return s.executeLocked(ctx, orderID, validate, mutate)
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin order transition: %w", err)
	}
	defer func() {
		_ = dbTx.Rollback()
	}()

	order, err := s.executeLocked(tx.WithTx(ctx, dbTx), orderID, validate, mutate)
	if err != nil {
		return nil, err
	}
	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("commit order transition: %w", err)
	}
	return order, nil
}

func (s *PostgresStore) executeLocked(ctx context.Context, orderID id.OrderID, validate func(*models.Order) error, mutate func(*models.Order)) (*models.Order, error) {
	q := tx.QuerierFrom(ctx, s.db)

	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`
	order, err := scanOrder(q.QueryRowContext(ctx, query, orderID.String()))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}

	if err := validate(order); err != nil {
		return nil, err
	}
	mutate(order)

	update := `
		UPDATE orders SET
			status = $2,
			granted_standard_capacity = $3,
			granted_test_capacity = $4,
			payment_reference = $5,
			rejection_reason = $6,
			approved_at = $7,
			approved_by = $8,
			updated_at = $9
		WHERE id = $1
	`
	if _, err := q.ExecContext(ctx, update,
		order.ID.String(), order.Status,
		order.GrantedStandardCapacity, order.GrantedTestCapacity,
		nullString(order.PaymentReference), nullString(order.RejectionReason),
		order.ApprovedAt, nullAdminID(order.ApprovedBy),
		order.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}
	return order, nil
}

func (s *PostgresStore) ExpireStale(ctx context.Context, cutoff, now time.Time) (int, error) {
	query := `
		UPDATE orders
		SET status = $1, updated_at = $2
		WHERE status IN ($3, $4, $5) AND created_at < $6
	`
	result, err := tx.QuerierFrom(ctx, s.db).ExecContext(ctx, query,
		models.StatusExpired, now,
		models.StatusDraft, models.StatusPendingPayment, models.StatusPendingApproval,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("expire stale orders: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire stale rows affected: %w", err)
	}
	return int(rows), nil
}

type row interface {
	Scan(dest ...any) error
}

func scanOrder(r row) (*models.Order, error) {
	var (
		order            models.Order
		rawID            string
		rawUserID        string
		rawTemplateID    string
		paymentReference sql.NullString
		rejectionReason  sql.NullString
		approvedAt       sql.NullTime
		approvedBy       sql.NullString
	)
	if err := r.Scan(
		&rawID, &order.OrderNumber, &rawUserID, &order.PlanCode, &rawTemplateID,
		&order.AmountCents, &order.Status,
		&order.GrantedStandardCapacity, &order.GrantedTestCapacity,
		&paymentReference, &rejectionReason, &approvedAt, &approvedBy,
		&order.CreatedAt, &order.UpdatedAt,
	); err != nil {
		return nil, err
	}

	orderID, err := id.ParseOrderID(rawID)
	if err != nil {
		return nil, fmt.Errorf("stored order id: %w", err)
	}
	userID, err := id.ParseUserID(rawUserID)
	if err != nil {
		return nil, fmt.Errorf("stored user id: %w", err)
	}
	templateID, err := id.ParseTemplateID(rawTemplateID)
	if err != nil {
		return nil, fmt.Errorf("stored template id: %w", err)
	}
	order.ID = orderID
	order.UserID = userID
	order.TemplateID = templateID

	order.PaymentReference = paymentReference.String
	order.RejectionReason = rejectionReason.String
	if approvedAt.Valid {
		order.ApprovedAt = &approvedAt.Time
	}
	if approvedBy.Valid {
		adminID, err := id.ParseAdminID(approvedBy.String)
		if err != nil {
			return nil, fmt.Errorf("stored approver id: %w", err)
		}
		order.ApprovedBy = &adminID
	}
	return &order, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullAdminID(adminID *id.AdminID) sql.NullString {
	if adminID == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: adminID.String(), Valid: true}
}
