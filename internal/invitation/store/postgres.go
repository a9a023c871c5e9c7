package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fete/internal/db"
	"fete/internal/invitation/models"
	id "fete/pkg/domain"
	"fete/pkg/platform/sentinel"
	"fete/pkg/platform/tx"
)

// PostgresStore persists invitations in PostgreSQL. Calls join a surrounding
// transaction when the context carries one.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(pool *sql.DB) *PostgresStore {
	return &PostgresStore{db: pool}
}

const invitationColumns = `id, order_id, slug, is_active, expires_at,
	granted_standard_capacity, granted_test_capacity, standard_used, test_used,
	created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, inv *models.Invitation) error {
	query := `
		INSERT INTO invitations (` + invitationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := tx.QuerierFrom(ctx, s.db).ExecContext(ctx, query,
		inv.ID.String(), inv.OrderID.String(), inv.Slug, inv.IsActive, inv.ExpiresAt,
		inv.GrantedStandardCapacity, inv.GrantedTestCapacity, inv.StandardUsed, inv.TestUsed,
		inv.CreatedAt, inv.UpdatedAt,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert invitation: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByOrderID(ctx context.Context, orderID id.OrderID) (*models.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE order_id = $1`
	return s.findOne(ctx, query, orderID.String())
}

func (s *PostgresStore) FindBySlug(ctx context.Context, slug string) (*models.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE slug = $1`
	return s.findOne(ctx, query, slug)
}

func (s *PostgresStore) findOne(ctx context.Context, query string, arg any) (*models.Invitation, error) {
	inv, err := scanInvitation(tx.QuerierFrom(ctx, s.db).QueryRowContext(ctx, query, arg))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find invitation: %w", err)
	}
	return inv, nil
}

func (s *PostgresStore) Execute(ctx context.Context, invitationID id.InvitationID, validate func(*models.Invitation) error, mutate func(*models.Invitation)) (*models.Invitation, error) {
	if _, ok := tx.From(ctx); ok {
		return s.executeLocked(ctx, invitationID, validate, mutate)
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin invitation update: %w", err)
	}
	defer func() {
		_ = dbTx.Rollback()
	}()

	inv, err := s.executeLocked(tx.WithTx(ctx, dbTx), invitationID, validate, mutate)
	if err != nil {
		return nil, err
	}
	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("commit invitation update: %w", err)
	}
	return inv, nil
}

func (s *PostgresStore) executeLocked(ctx context.Context, invitationID id.InvitationID, validate func(*models.Invitation) error, mutate func(*models.Invitation)) (*models.Invitation, error) {
	q := tx.QuerierFrom(ctx, s.db)

	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE id = $1 FOR UPDATE`
	inv, err := scanInvitation(q.QueryRowContext(ctx, query, invitationID.String()))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("lock invitation: %w", err)
	}

	if err := validate(inv); err != nil {
		return nil, err
	}
	mutate(inv)

	update := `
		UPDATE invitations SET
			is_active = $2,
			expires_at = $3,
			granted_standard_capacity = $4,
			granted_test_capacity = $5,
			standard_used = $6,
			test_used = $7,
			updated_at = $8
		WHERE id = $1
	`
	if _, err := q.ExecContext(ctx, update,
		inv.ID.String(), inv.IsActive, inv.ExpiresAt,
		inv.GrantedStandardCapacity, inv.GrantedTestCapacity,
		inv.StandardUsed, inv.TestUsed, inv.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("update invitation: %w", err)
	}
	return inv, nil
}

// ReserveSlot is a single conditional UPDATE: the WHERE clause re-checks the
// cap so concurrent reservations serialize on the row and the loser of the
// last slot matches zero rows. The check constraints in the schema are the
// final backstop.
func (s *PostgresStore) ReserveSlot(ctx context.Context, invitationID id.InvitationID, pool models.Pool, now time.Time) error {
	usedColumn := "standard_used"
	capColumn := "granted_standard_capacity"
	if pool == models.PoolTest {
		usedColumn = "test_used"
		capColumn = "granted_test_capacity"
	}

	query := fmt.Sprintf(`
		UPDATE invitations
		SET %[1]s = %[1]s + 1, updated_at = $2
		WHERE id = $1 AND is_active AND %[1]s < %[2]s
	`, usedColumn, capColumn)

	result, err := tx.QuerierFrom(ctx, s.db).ExecContext(ctx, query, invitationID.String(), now)
	if err != nil {
		return fmt.Errorf("reserve %s slot: %w", pool, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reserve slot rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	// Distinguish why the conditional write matched nothing.
	inv, err := s.findOne(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE id = $1`, invitationID.String())
	if err != nil {
		return err
	}
	if !inv.IsActive {
		return sentinel.ErrInvalidState
	}
	return sentinel.ErrQuotaExhausted
}

func (s *PostgresStore) ExpireLapsed(ctx context.Context, now time.Time) (int, error) {
	query := `
		UPDATE invitations
		SET is_active = FALSE, updated_at = $1
		WHERE is_active AND expires_at < $1
	`
	result, err := tx.QuerierFrom(ctx, s.db).ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("expire lapsed invitations: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire lapsed rows affected: %w", err)
	}
	return int(rows), nil
}

type row interface {
	Scan(dest ...any) error
}

func scanInvitation(r row) (*models.Invitation, error) {
	var (
		inv        models.Invitation
		rawID      string
		rawOrderID string
		expiresAt  sql.NullTime
	)
	if err := r.Scan(
		&rawID, &rawOrderID, &inv.Slug, &inv.IsActive, &expiresAt,
		&inv.GrantedStandardCapacity, &inv.GrantedTestCapacity,
		&inv.StandardUsed, &inv.TestUsed,
		&inv.CreatedAt, &inv.UpdatedAt,
	); err != nil {
		return nil, err
	}

	invitationID, err := id.ParseInvitationID(rawID)
	if err != nil {
		return nil, fmt.Errorf("stored invitation id: %w", err)
	}
	orderID, err := id.ParseOrderID(rawOrderID)
	if err != nil {
		return nil, fmt.Errorf("stored order id: %w", err)
	}
	inv.ID = invitationID
	inv.OrderID = orderID
	if expiresAt.Valid {
		inv.ExpiresAt = &expiresAt.Time
	}
	return &inv, nil
}
