package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cranecloud/internal/tickets"
)

const ticketColumns = `id, tenant_id, device_id, ticket_number, category, severity, priority,
	status, title, description, correlation_tag, occurrences, reported_by,
	opened_at, resolved_at, closed_at, updated_at`

// Repository persists maintenance tickets in Postgres.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, t *tickets.MaintenanceTicket) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO maintenance_tickets (`+ticketColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		t.ID, nullableString(t.TenantID), t.DeviceID, nullableInt(t.Number),
		t.Category, string(t.Severity), string(t.Priority),
		string(t.Status), t.Title, t.Description, t.CorrelationTag,
		t.Occurrences, t.ReportedBy,
		t.OpenedAt, nullableTime(t.ResolvedAt), nullableTime(t.ClosedAt), t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert ticket: %w", err)
	}
	return nil
}

func (r *Repository) Update(ctx context.Context, t *tickets.MaintenanceTicket) error {
	res, err := r.db.ExecContext(ctx, `UPDATE maintenance_tickets SET
			status = $2, title = $3, description = $4, occurrences = $5,
			resolved_at = $6, closed_at = $7, updated_at = $8
		WHERE id = $1`,
		t.ID, string(t.Status), t.Title, t.Description, t.Occurrences,
		nullableTime(t.ResolvedAt), nullableTime(t.ClosedAt), t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update ticket: %w", err)
	}
	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return tickets.ErrNotFound
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (*tickets.MaintenanceTicket, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+ticketColumns+`
		FROM maintenance_tickets WHERE id = $1`, id)
	ticket, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	return ticket, nil
}

func (r *Repository) FindOpenByCorrelation(ctx context.Context, deviceID, tag string) (*tickets.MaintenanceTicket, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+ticketColumns+`
		FROM maintenance_tickets
		WHERE device_id = $1 AND correlation_tag = $2 AND status IN ('open', 'in_progress')
		ORDER BY opened_at DESC LIMIT 1`, deviceID, tag)
	ticket, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find open ticket: %w", err)
	}
	return ticket, nil
}

func (r *Repository) FindByCorrelation(ctx context.Context, deviceID, tag string) (*tickets.MaintenanceTicket, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+ticketColumns+`
		FROM maintenance_tickets
		WHERE device_id = $1 AND correlation_tag = $2
		ORDER BY opened_at DESC LIMIT 1`, deviceID, tag)
	ticket, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find ticket: %w", err)
	}
	return ticket, nil
}

func (r *Repository) ListByDevice(ctx context.Context, deviceID string, limit int) ([]tickets.MaintenanceTicket, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+ticketColumns+`
		FROM maintenance_tickets WHERE device_id = $1
		ORDER BY opened_at DESC LIMIT $2`, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()

	var out []tickets.MaintenanceTicket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		out = append(out, *ticket)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner) (*tickets.MaintenanceTicket, error) {
	var (
		t                    tickets.MaintenanceTicket
		tenant               sql.NullString
		number               sql.NullInt64
		severity, priority   string
		stat                 string
		resolvedAt, closedAt sql.NullTime
	)
	err := row.Scan(
		&t.ID, &tenant, &t.DeviceID, &number, &t.Category, &severity, &priority,
		&stat, &t.Title, &t.Description, &t.CorrelationTag, &t.Occurrences, &t.ReportedBy,
		&t.OpenedAt, &resolvedAt, &closedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.TenantID = tenant.String
	t.Severity = tickets.Severity(severity)
	t.Priority = tickets.Priority(priority)
	t.Status = tickets.Status(stat)
	if number.Valid {
		n := int(number.Int64)
		t.Number = &n
	}
	if resolvedAt.Valid {
		v := resolvedAt.Time
		t.ResolvedAt = &v
	}
	if closedAt.Valid {
		v := closedAt.Time
		t.ClosedAt = &v
	}
	return &t, nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
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
