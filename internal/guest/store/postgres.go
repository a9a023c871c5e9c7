package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fete/internal/db"
	"fete/internal/guest/models"
	id "fete/pkg/domain"
	"fete/pkg/platform/sentinel"
	"fete/pkg/platform/tx"
)

// PostgresStore persists guests in PostgreSQL. Calls join a surrounding
// transaction when the context carries one.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(pool *sql.DB) *PostgresStore {
	return &PostgresStore{db: pool}
}

const guestColumns = `id, invitation_id, display_name, device_fingerprint, ip_address,
	user_agent_hash, is_test_slot, first_seen_at`

func (s *PostgresStore) Create(ctx context.Context, guest *models.Guest) error {
	query := `
		INSERT INTO guests (` + guestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := tx.QuerierFrom(ctx, s.db).ExecContext(ctx, query,
		guest.ID.String(), guest.InvitationID.String(), guest.DisplayName,
		guest.DeviceFingerprint, guest.IPAddress, guest.UserAgentHash,
		guest.IsTestSlot, guest.FirstSeenAt,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert guest: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByFingerprint(ctx context.Context, invitationID id.InvitationID, deviceFingerprint string) (*models.Guest, error) {
	query := `SELECT ` + guestColumns + ` FROM guests WHERE invitation_id = $1 AND device_fingerprint = $2`
	guest, err := scanGuest(tx.QuerierFrom(ctx, s.db).QueryRowContext(ctx, query, invitationID.String(), deviceFingerprint))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find guest by fingerprint: %w", err)
	}
	return guest, nil
}

func (s *PostgresStore) FindRecentByNetwork(ctx context.Context, invitationID id.InvitationID, ipAddress, userAgentHash string, since time.Time) (*models.Guest, error) {
	query := `
		SELECT ` + guestColumns + ` FROM guests
		WHERE invitation_id = $1 AND ip_address = $2 AND user_agent_hash = $3 AND first_seen_at >= $4
		ORDER BY first_seen_at DESC
		LIMIT 1
	`
	guest, err := scanGuest(tx.QuerierFrom(ctx, s.db).QueryRowContext(ctx, query,
		invitationID.String(), ipAddress, userAgentHash, since))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find guest by network: %w", err)
	}
	return guest, nil
}

func (s *PostgresStore) ListByInvitation(ctx context.Context, invitationID id.InvitationID) ([]*models.Guest, error) {
	query := `SELECT ` + guestColumns + ` FROM guests WHERE invitation_id = $1 ORDER BY first_seen_at ASC`
	rows, err := tx.QuerierFrom(ctx, s.db).QueryContext(ctx, query, invitationID.String())
	if err != nil {
		return nil, fmt.Errorf("list guests: %w", err)
	}
	defer rows.Close()

	var out []*models.Guest
	for rows.Next() {
		guest, err := scanGuest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan guest: %w", err)
		}
		out = append(out, guest)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate guests: %w", err)
	}
	return out, nil
}

type row interface {
	Scan(dest ...any) error
}

func scanGuest(r row) (*models.Guest, error) {
	var (
		guest           models.Guest
		rawID           string
		rawInvitationID string
	)
	if err := r.Scan(
		&rawID, &rawInvitationID, &guest.DisplayName, &guest.DeviceFingerprint,
		&guest.IPAddress, &guest.UserAgentHash, &guest.IsTestSlot, &guest.FirstSeenAt,
	); err != nil {
		return nil, err
	}

	guestID, err := id.ParseGuestID(rawID)
	if err != nil {
		return nil, fmt.Errorf("stored guest id: %w", err)
	}
	invitationID, err := id.ParseInvitationID(rawInvitationID)
	if err != nil {
		return nil, fmt.Errorf("stored invitation id: %w", err)
	}
	guest.ID = guestID
	guest.InvitationID = invitationID
	return &guest, nil
}
