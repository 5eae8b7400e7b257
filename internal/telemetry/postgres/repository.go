package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"cranecloud/internal/protocol"
	"cranecloud/internal/telemetry"
)

// Repository is a Postgres repository for telemetry records.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs a repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Insert appends one telemetry record.
func (r *Repository) Insert(ctx context.Context, record telemetry.Record) error {
	if r == nil || r.db == nil {
		return errors.New("telemetry repo: nil db")
	}
	if record.DeviceID == "" {
		return errors.New("telemetry repo: missing device id")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO telemetry_records (
	device_id, tenant_id, ts, kind, load, rated_capacity,
	ls1, ls2, ls3, ls4, working, overload, test_mode, operating_mode,
	ticket_number, ticket_type, ticket_open, raw_payload, checksum_valid, created_at
) VALUES (
	$1, $2, $3, $4, $5, $6,
	$7, $8, $9, $10, $11, $12, $13, $14,
	$15, $16, $17, $18, $19, $20
)`,
		record.DeviceID,
		nullableString(record.TenantID),
		record.Timestamp,
		string(record.Kind),
		nullableFloat(record.Load),
		nullableFloat(record.RatedCapacity),
		string(record.LS1),
		string(record.LS2),
		string(record.LS3),
		string(record.LS4),
		nullableBool(record.Working),
		nullableBool(record.Overload),
		nullableBool(record.TestMode),
		nullableString(record.OperatingMode),
		nullableInt(record.TicketNumber),
		nullableInt(record.TicketType),
		nullableBool(record.TicketOpen),
		record.RawPayload,
		nullableBool(record.ChecksumValid),
		record.CreatedAt,
	)
	return err
}

// LatestByDevice returns the newest records for a device, newest first.
func (r *Repository) LatestByDevice(ctx context.Context, deviceID string, limit int) ([]telemetry.Record, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("telemetry repo: nil db")
	}
	if deviceID == "" {
		return nil, errors.New("telemetry repo: missing device id")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT device_id, tenant_id, ts, kind, load, rated_capacity,
	ls1, ls2, ls3, ls4, working, overload, test_mode, operating_mode,
	ticket_number, ticket_type, ticket_open, raw_payload, checksum_valid, created_at
FROM telemetry_records
WHERE device_id = $1
ORDER BY ts DESC
LIMIT $2`, deviceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []telemetry.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func scanRecord(rows *sql.Rows) (telemetry.Record, error) {
	var record telemetry.Record
	var tenantID, mode sql.NullString
	var load, capacity sql.NullFloat64
	var working, overload, testMode, ticketOpen, checksumValid sql.NullBool
	var ticketNumber, ticketType sql.NullInt64
	var kind, ls1, ls2, ls3, ls4 string
	err := rows.Scan(
		&record.DeviceID,
		&tenantID,
		&record.Timestamp,
		&kind,
		&load,
		&capacity,
		&ls1,
		&ls2,
		&ls3,
		&ls4,
		&working,
		&overload,
		&testMode,
		&mode,
		&ticketNumber,
		&ticketType,
		&ticketOpen,
		&record.RawPayload,
		&checksumValid,
		&record.CreatedAt,
	)
	if err != nil {
		return telemetry.Record{}, err
	}
	record.TenantID = tenantID.String
	record.Kind = protocol.CommandKind(kind)
	record.OperatingMode = mode.String
	record.LS1 = protocol.SwitchState(ls1)
	record.LS2 = protocol.SwitchState(ls2)
	record.LS3 = protocol.SwitchState(ls3)
	record.LS4 = protocol.SwitchState(ls4)
	record.Load = floatPtr(load)
	record.RatedCapacity = floatPtr(capacity)
	record.Working = boolPtr(working)
	record.Overload = boolPtr(overload)
	record.TestMode = boolPtr(testMode)
	record.TicketOpen = boolPtr(ticketOpen)
	record.ChecksumValid = boolPtr(checksumValid)
	record.TicketNumber = intPtr(ticketNumber)
	record.TicketType = intPtr(ticketType)
	return record, nil
}

func nullableString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

func nullableFloat(value *float64) sql.NullFloat64 {
	if value == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *value, Valid: true}
}

func nullableBool(value *bool) sql.NullBool {
	if value == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *value, Valid: true}
}

func nullableInt(value *int) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*value), Valid: true}
}

func floatPtr(value sql.NullFloat64) *float64 {
	if !value.Valid {
		return nil
	}
	v := value.Float64
	return &v
}

func boolPtr(value sql.NullBool) *bool {
	if !value.Valid {
		return nil
	}
	v := value.Bool
	return &v
}

func intPtr(value sql.NullInt64) *int {
	if !value.Valid {
		return nil
	}
	v := int(value.Int64)
	return &v
}
