package repositories

import (
	"database/sql"
	"fmt"

	"github.com/desertthunder/upsync/internal/models"
	"github.com/desertthunder/upsync/internal/shared"
	"github.com/desertthunder/upsync/internal/tasks"
)

// DefaultSnapshotRetention is the number of snapshots kept after each save.
const DefaultSnapshotRetention = 5

// SnapshotRepository stores the task list of each successful refresh. It implements tasks.SnapshotCacher
// so the CLI can print the last known list while offline.
type SnapshotRepository struct {
	db   *sql.DB
	keep int
}

// NewSnapshotRepository creates a new [SnapshotRepository]. keep <= 0 uses [DefaultSnapshotRetention].
func NewSnapshotRepository(db *sql.DB, keep int) *SnapshotRepository {
	if keep <= 0 {
		keep = DefaultSnapshotRetention
	}
	return &SnapshotRepository{db: db, keep: keep}
}

// SaveSnapshot inserts snapshot with its tasks in list order and prunes older snapshots.
// The snapshot's ID is generated when empty.
func (r *SnapshotRepository) SaveSnapshot(snapshot *models.TaskSnapshot) error {
	if snapshot.ID == "" {
		snapshot.ID = shared.GenerateID()
	}

	return withTx(r.db, func(tx *sql.Tx) error {
		_, err := tx.Exec(
			"INSERT INTO task_snapshots (id, fetched_at, total) VALUES (?, ?, ?)",
			snapshot.ID, snapshot.FetchedAt, len(snapshot.Tasks),
		)
		if err != nil {
			return fmt.Errorf("failed to insert snapshot: %w", err)
		}

		stmt, err := tx.Prepare(`
			INSERT INTO snapshot_tasks
				(snapshot_id, position, task_id, external_ref, title, status_code, external_result_ref, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare task insert: %w", err)
		}
		defer stmt.Close()

		for i, t := range snapshot.Tasks {
			_, err := stmt.Exec(
				snapshot.ID, i, t.TaskID, t.ExternalRef, t.Title, t.StatusCode, t.ExternalResultRef,
				nullTime(t.CreatedAt), nullTime(t.UpdatedAt),
			)
			if err != nil {
				return fmt.Errorf("failed to insert task %s: %w", t.TaskID, err)
			}
		}

		_, err = tx.Exec(`
			DELETE FROM task_snapshots
			WHERE id NOT IN (SELECT id FROM task_snapshots ORDER BY fetched_at DESC, rowid DESC LIMIT ?)
		`, r.keep)
		if err != nil {
			return fmt.Errorf("failed to prune snapshots: %w", err)
		}
		return nil
	})
}

// Latest returns the most recent snapshot, or [shared.ErrCacheMiss] when none was saved.
func (r *SnapshotRepository) Latest() (*models.TaskSnapshot, error) {
	var snapshot models.TaskSnapshot
	err := r.db.QueryRow(
		"SELECT id, fetched_at FROM task_snapshots ORDER BY fetched_at DESC, rowid DESC LIMIT 1",
	).Scan(&snapshot.ID, &snapshot.FetchedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: task snapshot", shared.ErrCacheMiss)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}

	tasks, err := r.tasks(snapshot.ID)
	if err != nil {
		return nil, err
	}
	snapshot.Tasks = tasks
	return &snapshot, nil
}

// Count returns the number of stored snapshots.
func (r *SnapshotRepository) Count() (int, error) {
	var n int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM task_snapshots").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count snapshots: %w", err)
	}
	return n, nil
}

// Clear removes every snapshot. Used on logout.
func (r *SnapshotRepository) Clear() error {
	if _, err := r.db.Exec("DELETE FROM task_snapshots"); err != nil {
		return fmt.Errorf("failed to clear snapshots: %w", err)
	}
	return nil
}

func (r *SnapshotRepository) tasks(snapshotID string) ([]models.TaskInstance, error) {
	query := `
		SELECT task_id, external_ref, title, status_code, external_result_ref, created_at, updated_at
		FROM snapshot_tasks
		WHERE snapshot_id = ?
		ORDER BY position ASC
	`

	rows, err := r.db.Query(query, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot tasks: %w", err)
	}
	defer rows.Close()

	tasks := []models.TaskInstance{}
	for rows.Next() {
		var (
			t         models.TaskInstance
			createdAt sql.NullTime
			updatedAt sql.NullTime
		)
		err := rows.Scan(&t.TaskID, &t.ExternalRef, &t.Title, &t.StatusCode, &t.ExternalResultRef, &createdAt, &updatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		if createdAt.Valid {
			t.CreatedAt = createdAt.Time
		}
		if updatedAt.Valid {
			t.UpdatedAt = updatedAt.Time
		}
		tasks = append(tasks, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return tasks, nil
}

var _ tasks.SnapshotCacher = (*SnapshotRepository)(nil)
