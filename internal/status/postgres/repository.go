package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cranecloud/internal/protocol"
	"cranecloud/internal/status"
)

const snapshotColumns = `device_id, tenant_id,
	ls1, ls2, ls3, ls4, overload, working, test_mode, secondary_block,
	load_tonnes, rated_capacity, operating_mode,
	longitude, latitude, location_source, location_accuracy,
	tested_ls1, tested_ls2, tested_ls3, tested_ls4,
	hits_ls1, hits_ls2, hits_ls3, hits_ls4,
	test_started_at, test_completed_at, test_completed,
	utilization_state, session_start, worked_seconds, utilization_pct,
	overload_state, overload_start, overload_seconds, overload_events, overload_pct, risk,
	ticket_number, ticket_type, ticket_open,
	day, last_event_at, updated_at`

// SnapshotRepository persists device status snapshots in Postgres.
type SnapshotRepository struct {
	db *sql.DB
}

func NewSnapshotRepository(db *sql.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

func (r *SnapshotRepository) Get(ctx context.Context, deviceID string) (*status.Snapshot, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+snapshotColumns+`
		FROM device_status_snapshots WHERE device_id = $1`, deviceID)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, status.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	return snap, nil
}

func (r *SnapshotRepository) Upsert(ctx context.Context, snap *status.Snapshot) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO device_status_snapshots (`+snapshotColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17,
			$18, $19, $20, $21, $22, $23, $24, $25,
			$26, $27, $28, $29, $30, $31, $32,
			$33, $34, $35, $36, $37, $38,
			$39, $40, $41, $42, $43, $44)
		ON CONFLICT (device_id) DO UPDATE SET
			tenant_id = EXCLUDED.tenant_id,
			ls1 = EXCLUDED.ls1, ls2 = EXCLUDED.ls2,
			ls3 = EXCLUDED.ls3, ls4 = EXCLUDED.ls4,
			overload = EXCLUDED.overload,
			working = EXCLUDED.working,
			test_mode = EXCLUDED.test_mode,
			secondary_block = EXCLUDED.secondary_block,
			load_tonnes = EXCLUDED.load_tonnes,
			rated_capacity = EXCLUDED.rated_capacity,
			operating_mode = EXCLUDED.operating_mode,
			longitude = EXCLUDED.longitude,
			latitude = EXCLUDED.latitude,
			location_source = EXCLUDED.location_source,
			location_accuracy = EXCLUDED.location_accuracy,
			tested_ls1 = EXCLUDED.tested_ls1, tested_ls2 = EXCLUDED.tested_ls2,
			tested_ls3 = EXCLUDED.tested_ls3, tested_ls4 = EXCLUDED.tested_ls4,
			hits_ls1 = EXCLUDED.hits_ls1, hits_ls2 = EXCLUDED.hits_ls2,
			hits_ls3 = EXCLUDED.hits_ls3, hits_ls4 = EXCLUDED.hits_ls4,
			test_started_at = EXCLUDED.test_started_at,
			test_completed_at = EXCLUDED.test_completed_at,
			test_completed = EXCLUDED.test_completed,
			utilization_state = EXCLUDED.utilization_state,
			session_start = EXCLUDED.session_start,
			worked_seconds = EXCLUDED.worked_seconds,
			utilization_pct = EXCLUDED.utilization_pct,
			overload_state = EXCLUDED.overload_state,
			overload_start = EXCLUDED.overload_start,
			overload_seconds = EXCLUDED.overload_seconds,
			overload_events = EXCLUDED.overload_events,
			overload_pct = EXCLUDED.overload_pct,
			risk = EXCLUDED.risk,
			ticket_number = EXCLUDED.ticket_number,
			ticket_type = EXCLUDED.ticket_type,
			ticket_open = EXCLUDED.ticket_open,
			day = EXCLUDED.day,
			last_event_at = EXCLUDED.last_event_at,
			updated_at = EXCLUDED.updated_at`,
		snap.DeviceID, snap.TenantID,
		string(snap.LS1), string(snap.LS2), string(snap.LS3), string(snap.LS4),
		nullableBool(snap.Overload), nullableBool(snap.Working),
		nullableBool(snap.TestMode), nullableBool(snap.SecondaryBlock),
		nullableFloat(snap.Load), nullableFloat(snap.RatedCapacity),
		nullableString(snap.OperatingMode),
		nullableFloat(snap.Longitude), nullableFloat(snap.Latitude),
		nullableString(snap.LocationSource), nullableFloat(snap.LocationAcc),
		snap.TestedToday[0], snap.TestedToday[1], snap.TestedToday[2], snap.TestedToday[3],
		snap.HitCount[0], snap.HitCount[1], snap.HitCount[2], snap.HitCount[3],
		nullableTime(snap.TestStartedAt), nullableTime(snap.TestCompletedAt), snap.TestModeCompleted,
		string(snap.UtilizationState), nullableTime(snap.SessionStart),
		snap.WorkedSeconds, snap.UtilizationPct,
		string(snap.OverloadState), nullableTime(snap.OverloadStart),
		snap.OverloadSeconds, snap.OverloadEvents, snap.OverloadPct, string(snap.Risk),
		nullableInt(snap.TicketNumber), nullableInt(snap.TicketType), nullableBool(snap.TicketOpen),
		snap.Day, snap.LastEventAt, snap.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

func (r *SnapshotRepository) ListAll(ctx context.Context) ([]status.Snapshot, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+snapshotColumns+`
		FROM device_status_snapshots ORDER BY device_id`)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []status.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, *snap)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (*status.Snapshot, error) {
	var (
		snap                          status.Snapshot
		ls1, ls2, ls3, ls4, utilState string
		overState, risk               string
		overload, working, testMode   sql.NullBool
		secondaryBlock, ticketOpen    sql.NullBool
		load, ratedCapacity           sql.NullFloat64
		longitude, latitude, locAcc   sql.NullFloat64
		operatingMode, locSource      sql.NullString
		testStarted, testCompleted    sql.NullTime
		sessionStart, overloadStart   sql.NullTime
		ticketNumber, ticketType      sql.NullInt64
	)
	err := row.Scan(
		&snap.DeviceID, &snap.TenantID,
		&ls1, &ls2, &ls3, &ls4,
		&overload, &working, &testMode, &secondaryBlock,
		&load, &ratedCapacity, &operatingMode,
		&longitude, &latitude, &locSource, &locAcc,
		&snap.TestedToday[0], &snap.TestedToday[1], &snap.TestedToday[2], &snap.TestedToday[3],
		&snap.HitCount[0], &snap.HitCount[1], &snap.HitCount[2], &snap.HitCount[3],
		&testStarted, &testCompleted, &snap.TestModeCompleted,
		&utilState, &sessionStart, &snap.WorkedSeconds, &snap.UtilizationPct,
		&overState, &overloadStart, &snap.OverloadSeconds, &snap.OverloadEvents,
		&snap.OverloadPct, &risk,
		&ticketNumber, &ticketType, &ticketOpen,
		&snap.Day, &snap.LastEventAt, &snap.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	snap.LS1 = protocol.SwitchState(ls1)
	snap.LS2 = protocol.SwitchState(ls2)
	snap.LS3 = protocol.SwitchState(ls3)
	snap.LS4 = protocol.SwitchState(ls4)
	snap.UtilizationState = status.UtilizationState(utilState)
	snap.OverloadState = status.OverloadState(overState)
	snap.Risk = status.RiskLevel(risk)
	snap.Overload = boolPtr(overload)
	snap.Working = boolPtr(working)
	snap.TestMode = boolPtr(testMode)
	snap.SecondaryBlock = boolPtr(secondaryBlock)
	snap.Load = floatPtr(load)
	snap.RatedCapacity = floatPtr(ratedCapacity)
	snap.OperatingMode = operatingMode.String
	snap.Longitude = floatPtr(longitude)
	snap.Latitude = floatPtr(latitude)
	snap.LocationSource = locSource.String
	snap.LocationAcc = floatPtr(locAcc)
	snap.TestStartedAt = timePtr(testStarted)
	snap.TestCompletedAt = timePtr(testCompleted)
	snap.SessionStart = timePtr(sessionStart)
	snap.OverloadStart = timePtr(overloadStart)
	snap.TicketNumber = intPtr(ticketNumber)
	snap.TicketType = intPtr(ticketType)
	snap.TicketOpen = boolPtr(ticketOpen)
	return &snap, nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullableBool(v *bool) sql.NullBool {
	if v == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *v, Valid: true}
}

func nullableFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullableInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullableTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}

func boolPtr(v sql.NullBool) *bool {
	if !v.Valid {
		return nil
	}
	b := v.Bool
	return &b
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
