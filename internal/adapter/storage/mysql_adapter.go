package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/hwlab/inventory/internal/core/domain"
)

const mysqlDuplicateEntry = 1062

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// Reserve performs the checkout as one transaction: a conditional increment
// on the counter row, then the ledger upsert. The guard in the UPDATE is the
// only admission check, so two racing callers can never both pass it for the
// same remaining units. Lock order is hardware row first, then checkout
// record, matching Release.
func (m *MySQLAdapter) Reserve(ctx context.Context, hardwareName, projectID string, quantity int) (*domain.Availability, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE hardware_sets
		SET checked_out = checked_out + ?, version = version + 1, updated_at = NOW()
		WHERE name = ? AND checked_out + ? <= total_capacity`,
		quantity, hardwareName, quantity,
	)
	if err != nil {
		return nil, fmt.Errorf("increment checked_out: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, m.classifyReserveFailure(ctx, tx, hardwareName)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO checkout_records (project_id, hardware_name, quantity, checked_out_at, updated_at)
		VALUES (?, ?, ?, NOW(), NOW())
		ON DUPLICATE KEY UPDATE quantity = quantity + ?, updated_at = NOW()`,
		projectID, hardwareName, quantity, quantity,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert checkout record: %w", err)
	}

	av, err := m.availabilityInTx(ctx, tx, hardwareName)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reserve: %w", err)
	}
	return av, nil
}

// Release mirrors Reserve: conditional decrement on the counter row, then the
// ledger decrement, then removal of the record if it hit zero.
func (m *MySQLAdapter) Release(ctx context.Context, hardwareName, projectID string, quantity int) (*domain.Availability, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE hardware_sets
		SET checked_out = checked_out - ?, version = version + 1, updated_at = NOW()
		WHERE name = ? AND checked_out >= ?`,
		quantity, hardwareName, quantity,
	)
	if err != nil {
		return nil, fmt.Errorf("decrement checked_out: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, m.classifyReleaseFailure(ctx, tx, hardwareName, projectID)
	}

	result, err = tx.ExecContext(ctx, `
		UPDATE checkout_records
		SET quantity = quantity - ?, updated_at = NOW()
		WHERE project_id = ? AND hardware_name = ? AND quantity >= ?`,
		quantity, projectID, hardwareName, quantity,
	)
	if err != nil {
		return nil, fmt.Errorf("decrement checkout record: %w", err)
	}

	rows, _ = result.RowsAffected()
	if rows == 0 {
		// Counter had room but the project's ledger does not cover the
		// return. The deferred rollback undoes the counter change.
		return nil, m.classifyReleaseFailure(ctx, tx, hardwareName, projectID)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM checkout_records
		WHERE project_id = ? AND hardware_name = ? AND quantity = 0`,
		projectID, hardwareName,
	)
	if err != nil {
		return nil, fmt.Errorf("delete exhausted checkout record: %w", err)
	}

	av, err := m.availabilityInTx(ctx, tx, hardwareName)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit release: %w", err)
	}
	return av, nil
}

func (m *MySQLAdapter) classifyReserveFailure(ctx context.Context, tx *sql.Tx, hardwareName string) error {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM hardware_sets WHERE name = ?`, hardwareName).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrHardwareNotFound
	}
	if err != nil {
		return fmt.Errorf("query hardware set: %w", err)
	}
	return domain.ErrInsufficientAvailability
}

func (m *MySQLAdapter) classifyReleaseFailure(ctx context.Context, tx *sql.Tx, hardwareName, projectID string) error {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM hardware_sets WHERE name = ?`, hardwareName).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrHardwareNotFound
	}
	if err != nil {
		return fmt.Errorf("query hardware set: %w", err)
	}

	var held int
	err = tx.QueryRowContext(ctx, `
		SELECT quantity FROM checkout_records
		WHERE project_id = ? AND hardware_name = ?`,
		projectID, hardwareName,
	).Scan(&held)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNoActiveCheckout
	}
	if err != nil {
		return fmt.Errorf("query checkout record: %w", err)
	}
	return domain.ErrOverRelease
}

func (m *MySQLAdapter) availabilityInTx(ctx context.Context, tx *sql.Tx, hardwareName string) (*domain.Availability, error) {
	var av domain.Availability
	av.HardwareName = hardwareName
	err := tx.QueryRowContext(ctx, `
		SELECT total_capacity, checked_out FROM hardware_sets WHERE name = ?`,
		hardwareName,
	).Scan(&av.TotalCapacity, &av.CheckedOut)
	if err != nil {
		return nil, fmt.Errorf("query availability: %w", err)
	}
	av.Available = av.TotalCapacity - av.CheckedOut
	return &av, nil
}

func (m *MySQLAdapter) GetHardwareSet(ctx context.Context, name string) (*domain.HardwareSet, error) {
	var hw domain.HardwareSet
	err := m.db.QueryRowContext(ctx, `
		SELECT name, description, total_capacity, checked_out, version, created_at, updated_at
		FROM hardware_sets WHERE name = ?`, name,
	).Scan(&hw.Name, &hw.Description, &hw.TotalCapacity, &hw.CheckedOut, &hw.Version, &hw.CreatedAt, &hw.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query hardware set: %w", err)
	}
	return &hw, nil
}

func (m *MySQLAdapter) ListHardwareSets(ctx context.Context) ([]domain.HardwareSet, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT name, description, total_capacity, checked_out, version, created_at, updated_at
		FROM hardware_sets ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list hardware sets: %w", err)
	}
	defer rows.Close()

	var sets []domain.HardwareSet
	for rows.Next() {
		var hw domain.HardwareSet
		if err := rows.Scan(&hw.Name, &hw.Description, &hw.TotalCapacity, &hw.CheckedOut, &hw.Version, &hw.CreatedAt, &hw.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan hardware set: %w", err)
		}
		sets = append(sets, hw)
	}
	return sets, rows.Err()
}

func (m *MySQLAdapter) CreateHardwareSet(ctx context.Context, hw domain.HardwareSet) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO hardware_sets (name, description, total_capacity, checked_out, version, created_at, updated_at)
		VALUES (?, ?, ?, 0, 0, NOW(), NOW())`,
		hw.Name, hw.Description, hw.TotalCapacity,
	)
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
		return domain.ErrHardwareExists
	}
	if err != nil {
		return fmt.Errorf("insert hardware set: %w", err)
	}
	return nil
}

// UpdateCapacity applies the new total with a version check; the checked_out
// guard keeps the invariant even if units were reserved since the caller read
// the row.
func (m *MySQLAdapter) UpdateCapacity(ctx context.Context, hw domain.HardwareSet) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE hardware_sets
		SET total_capacity = ?, version = version + 1, updated_at = NOW()
		WHERE name = ? AND version = ? AND checked_out <= ?`,
		hw.TotalCapacity, hw.Name, hw.Version, hw.TotalCapacity,
	)
	if err != nil {
		return fmt.Errorf("update capacity: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrConcurrencyConflict
	}
	return nil
}

func (m *MySQLAdapter) AppendLedgerEvent(ctx context.Context, ev domain.LedgerEvent) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO ledger_events (id, project_id, hardware_name, actor, action, quantity, available, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.ProjectID, ev.HardwareName, ev.Actor, ev.Action, ev.Quantity, ev.Available, ev.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert ledger event: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) GetProject(ctx context.Context, projectID string) (*domain.Project, error) {
	var p domain.Project
	err := m.db.QueryRowContext(ctx, `
		SELECT id, name, owner, created_at FROM projects WHERE id = ?`, projectID,
	).Scan(&p.ID, &p.Name, &p.Owner, &p.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query project: %w", err)
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT username FROM project_members WHERE project_id = ? ORDER BY username`, projectID)
	if err != nil {
		return nil, fmt.Errorf("query project members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var member string
		if err := rows.Scan(&member); err != nil {
			return nil, fmt.Errorf("scan project member: %w", err)
		}
		p.Members = append(p.Members, member)
	}
	return &p, rows.Err()
}

func (m *MySQLAdapter) IsMember(ctx context.Context, projectID, username string) (bool, error) {
	var n int
	err := m.db.QueryRowContext(ctx, `
		SELECT 1 FROM project_members WHERE project_id = ? AND username = ?`,
		projectID, username,
	).Scan(&n)

	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query membership: %w", err)
	}
	return true, nil
}
