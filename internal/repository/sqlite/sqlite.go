package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"camerabridge/internal/domain"

	_ "modernc.org/sqlite"
)

// Repository implements repository.Repository using SQLite
type Repository struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath and applies the schema
func New(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serializes writers and keeps :memory: databases
	// from splitting across pool connections.
	db.SetMaxOpenConns(1)

	repo := &Repository{db: db}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return repo, nil
}

func (r *Repository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS devices (
		position INTEGER PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		address TEXT NOT NULL,
		channel INTEGER NOT NULL,
		status TEXT NOT NULL,
		stream_uri TEXT,
		data JSON NOT NULL,
		last_seen DATETIME,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_devices_address ON devices(address, channel);
	`

	_, err := r.db.Exec(schema)
	return err
}

// LoadDevices returns the snapshot in saved order
func (r *Repository) LoadDevices(ctx context.Context) ([]domain.Device, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, address, channel, status, stream_uri, data, last_seen
		FROM devices
		ORDER BY position
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	devices := []domain.Device{}
	for rows.Next() {
		var (
			id, address, status string
			channel             int
			streamURI           sql.NullString
			data                []byte
			lastSeen            sql.NullTime
		)

		if err := rows.Scan(&id, &address, &channel, &status, &streamURI, &data, &lastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}

		var device domain.Device
		if err := json.Unmarshal(data, &device); err != nil {
			return nil, fmt.Errorf("failed to unmarshal device %s: %w", id, err)
		}

		// Indexed columns are the source of truth
		device.ID = id
		device.Address = address
		device.Channel = channel
		device.Status = domain.DeviceStatus(status)
		device.StreamURI = nullToString(streamURI)
		if lastSeen.Valid {
			device.LastSeen = lastSeen.Time.UTC()
		}

		devices = append(devices, device)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating devices: %w", err)
	}

	return devices, nil
}

// SaveDevices replaces every row inside one transaction
func (r *Repository) SaveDevices(ctx context.Context, devices []domain.Device) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM devices`); err != nil {
		return fmt.Errorf("failed to clear devices: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO devices (position, id, address, channel, status, stream_uri, data, last_seen, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, device := range devices {
		data, err := json.Marshal(device)
		if err != nil {
			return fmt.Errorf("failed to marshal device %s: %w", device.ID, err)
		}

		if _, err := stmt.ExecContext(ctx,
			i,
			device.ID,
			device.Address,
			device.Channel,
			string(device.Status),
			stringToNull(device.StreamURI),
			data,
			timeToNull(device.LastSeen),
		); err != nil {
			return fmt.Errorf("failed to insert device %s: %w", device.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}

// CountDevices returns the number of stored rows
func (r *Repository) CountDevices(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM devices`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count devices: %w", err)
	}
	return n, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}
