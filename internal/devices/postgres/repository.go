package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"cranecloud/internal/devices"
)

// DeviceRepository is a Postgres repository for permanent device records.
type DeviceRepository struct {
	db *sql.DB
}

// NewDeviceRepository constructs a repository.
func NewDeviceRepository(db *sql.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// Get fetches a device by id. Returns devices.ErrNotFound when absent.
func (r *DeviceRepository) Get(ctx context.Context, id string) (*devices.Device, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("device repo: nil db")
	}
	if id == "" {
		return nil, errors.New("device repo: empty id")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, tenant_id, name, device_type, location, rated_capacity,
	supervisors, operators, managers, active, approved_by, created_at, updated_at
FROM devices
WHERE id = $1`, id)

	var device devices.Device
	var supervisors, operators, managers []byte
	var tenantID, location, approvedBy sql.NullString
	err := row.Scan(
		&device.ID,
		&tenantID,
		&device.Name,
		&device.DeviceType,
		&location,
		&device.RatedCapacity,
		&supervisors,
		&operators,
		&managers,
		&device.Active,
		&approvedBy,
		&device.CreatedAt,
		&device.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, devices.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	device.TenantID = tenantID.String
	device.Location = location.String
	device.ApprovedBy = approvedBy.String
	device.Supervisors = decodeNames(supervisors)
	device.Operators = decodeNames(operators)
	device.Managers = decodeNames(managers)
	return &device, nil
}

// Create inserts a new device record.
func (r *DeviceRepository) Create(ctx context.Context, device *devices.Device) error {
	if r == nil || r.db == nil {
		return errors.New("device repo: nil db")
	}
	if device == nil || device.ID == "" {
		return errors.New("device repo: missing device id")
	}
	if device.CreatedAt.IsZero() {
		device.CreatedAt = time.Now().UTC()
	}
	if device.UpdatedAt.IsZero() {
		device.UpdatedAt = device.CreatedAt
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO devices (
	id, tenant_id, name, device_type, location, rated_capacity,
	supervisors, operators, managers, active, approved_by, created_at, updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6,
	$7, $8, $9, $10, $11, $12, $13
)`,
		device.ID,
		nullableString(device.TenantID),
		device.Name,
		device.DeviceType,
		nullableString(device.Location),
		device.RatedCapacity,
		encodeNames(device.Supervisors),
		encodeNames(device.Operators),
		encodeNames(device.Managers),
		device.Active,
		nullableString(device.ApprovedBy),
		device.CreatedAt,
		device.UpdatedAt,
	)
	return err
}

func encodeNames(names []string) []byte {
	if len(names) == 0 {
		return []byte("[]")
	}
	data, err := json.Marshal(names)
	if err != nil {
		return []byte("[]")
	}
	return data
}

func decodeNames(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil
	}
	if len(names) == 0 {
		return nil
	}
	return names
}

func nullableString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
