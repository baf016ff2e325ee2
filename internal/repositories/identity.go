package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/upsync/internal/models"
	"github.com/desertthunder/upsync/internal/shared"
)

// IdentityRepository caches the identity of the signed-in account so `status` and the TUI header can
// show it without a round trip. At most one identity is stored.
type IdentityRepository struct {
	db *sql.DB
}

// NewIdentityRepository creates a new [IdentityRepository] with the given database connection
func NewIdentityRepository(db *sql.DB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

// Save replaces the cached identity with identity.
func (r *IdentityRepository) Save(identity *models.Identity) error {
	if err := identity.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	return withTx(r.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM identities"); err != nil {
			return fmt.Errorf("failed to clear identities: %w", err)
		}

		query := `
			INSERT INTO identities (id, subject_id, display_name, avatar_url, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`
		_, err := tx.Exec(query, shared.GenerateID(), identity.SubjectID, identity.DisplayName, identity.AvatarURL, now, now)
		if err != nil {
			return fmt.Errorf("failed to insert identity: %w", err)
		}
		return nil
	})
}

// Get returns the cached identity, or [shared.ErrCacheMiss] when nobody is signed in.
func (r *IdentityRepository) Get() (*models.Identity, error) {
	query := `
		SELECT subject_id, display_name, avatar_url
		FROM identities
		ORDER BY updated_at DESC
		LIMIT 1
	`

	var identity models.Identity
	err := r.db.QueryRow(query).Scan(&identity.SubjectID, &identity.DisplayName, &identity.AvatarURL)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: identity", shared.ErrCacheMiss)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query identity: %w", err)
	}

	return &identity, nil
}

// Clear removes the cached identity. Clearing an empty cache is not an error.
func (r *IdentityRepository) Clear() error {
	if _, err := r.db.Exec("DELETE FROM identities"); err != nil {
		return fmt.Errorf("failed to clear identities: %w", err)
	}
	return nil
}
