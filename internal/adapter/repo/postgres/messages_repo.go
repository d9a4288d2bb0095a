// Package postgres provides the PostgreSQL message store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fairyhunter13/lawbot/internal/domain"
)

// PgxPool is a minimal subset of pgxpool used by the repos for easy testing.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// MessageRepo stores the conversation log. Content is normalized on write:
// empty content is rejected and overlong content truncated.
type MessageRepo struct {
	Pool          PgxPool
	ContentMaxLen int
}

var (
	_ domain.MessageRepository = (*MessageRepo)(nil)
	_ domain.MessageReporting  = (*MessageRepo)(nil)
)

// NewMessageRepo constructs a MessageRepo. contentMaxLen <= 0 uses the domain default.
func NewMessageRepo(p PgxPool, contentMaxLen int) *MessageRepo {
	if contentMaxLen <= 0 {
		contentMaxLen = domain.DefaultContentMaxLen
	}
	return &MessageRepo{Pool: p, ContentMaxLen: contentMaxLen}
}

func startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	ctx, span := otel.Tracer("repo.messages").Start(ctx, name)
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", op),
		attribute.String("db.sql.table", "messages"),
	)
	return ctx, span
}

func (r *MessageRepo) normalize(m domain.Message) (domain.Message, error) {
	if !m.Role.Valid() {
		return m, fmt.Errorf("%w: unknown role %q", domain.ErrInvalidArgument, m.Role)
	}
	content, err := domain.NormalizeContent(m.Content, r.ContentMaxLen)
	if err != nil {
		return m, err
	}
	m.Content = content
	return m, nil
}

// Create stores a message and returns its id.
func (r *MessageRepo) Create(ctx domain.Context, m domain.Message) (int64, error) {
	ctx, span := startSpan(ctx, "messages.Create", "INSERT")
	defer span.End()
	m, err := r.normalize(m)
	if err != nil {
		return 0, fmt.Errorf("op=message.create: %w", err)
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	q := `INSERT INTO messages (role, content, created_at) VALUES ($1,$2,$3) RETURNING id`
	var id int64
	if err := r.Pool.QueryRow(ctx, q, string(m.Role), m.Content, m.CreatedAt).Scan(&id); err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("op=message.create: %w", err)
	}
	span.SetAttributes(attribute.Int64("message.id", id))
	return id, nil
}

// Get loads a message by id.
func (r *MessageRepo) Get(ctx domain.Context, id int64) (domain.Message, error) {
	ctx, span := startSpan(ctx, "messages.Get", "SELECT")
	defer span.End()
	q := `SELECT id, role, content, created_at FROM messages WHERE id=$1`
	m, err := scanMessage(r.Pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Message{}, fmt.Errorf("op=message.get: %w", domain.ErrNotFound)
		}
		return domain.Message{}, fmt.Errorf("op=message.get: %w", err)
	}
	return m, nil
}

// Update replaces role and content of an existing message.
func (r *MessageRepo) Update(ctx domain.Context, m domain.Message) error {
	ctx, span := startSpan(ctx, "messages.Update", "UPDATE")
	defer span.End()
	m, err := r.normalize(m)
	if err != nil {
		return fmt.Errorf("op=message.update: %w", err)
	}
	tag, err := r.Pool.Exec(ctx, `UPDATE messages SET role=$2, content=$3 WHERE id=$1`, m.ID, string(m.Role), m.Content)
	if err != nil {
		return fmt.Errorf("op=message.update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=message.update: %w", domain.ErrNotFound)
	}
	return nil
}

// Delete removes a message.
func (r *MessageRepo) Delete(ctx domain.Context, id int64) error {
	ctx, span := startSpan(ctx, "messages.Delete", "DELETE")
	defer span.End()
	tag, err := r.Pool.Exec(ctx, `DELETE FROM messages WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("op=message.delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=message.delete: %w", domain.ErrNotFound)
	}
	return nil
}

// List returns messages matching f, oldest first unless f.Desc is set.
func (r *MessageRepo) List(ctx domain.Context, f domain.MessageFilter) ([]domain.Message, error) {
	ctx, span := startSpan(ctx, "messages.List", "SELECT")
	defer span.End()

	var (
		where []string
		args  []any
	)
	if f.Role != "" {
		args = append(args, string(f.Role))
		where = append(where, "role = $"+strconv.Itoa(len(args)))
	}
	if !f.Since.IsZero() {
		args = append(args, f.Since)
		where = append(where, "created_at >= $"+strconv.Itoa(len(args)))
	}
	var b strings.Builder
	b.WriteString(`SELECT id, role, content, created_at FROM messages`)
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	if f.Desc {
		b.WriteString(" ORDER BY created_at DESC, id DESC")
	} else {
		b.WriteString(" ORDER BY created_at ASC, id ASC")
	}
	if f.Limit > 0 {
		args = append(args, f.Limit)
		b.WriteString(" LIMIT $" + strconv.Itoa(len(args)))
	}

	rows, err := r.Pool.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("op=message.list: %w", err)
	}
	defer rows.Close()
	out := make([]domain.Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("op=message.list_scan: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=message.list: %w", err)
	}
	span.SetAttributes(attribute.Int("db.rows", len(out)))
	return out, nil
}

func scanMessage(row pgx.Row) (domain.Message, error) {
	var (
		m    domain.Message
		role string
	)
	if err := row.Scan(&m.ID, &role, &m.Content, &m.CreatedAt); err != nil {
		return domain.Message{}, err
	}
	m.Role = domain.Role(role)
	return m, nil
}

func (r *MessageRepo) scalar(ctx context.Context, name, q string, dst any, args ...any) error {
	ctx, span := startSpan(ctx, "messages."+name, "SELECT")
	defer span.End()
	if err := r.Pool.QueryRow(ctx, q, args...).Scan(dst); err != nil {
		return fmt.Errorf("op=message.%s: %w", strings.ToLower(name), err)
	}
	return nil
}

// Count returns the total number of messages.
func (r *MessageRepo) Count(ctx domain.Context) (int64, error) {
	var n int64
	err := r.scalar(ctx, "Count", `SELECT COUNT(*) FROM messages`, &n)
	return n, err
}

// CountByRole returns the number of messages with the given role.
func (r *MessageRepo) CountByRole(ctx domain.Context, role domain.Role) (int64, error) {
	var n int64
	err := r.scalar(ctx, "CountByRole", `SELECT COUNT(*) FROM messages WHERE role = $1`, &n, string(role))
	return n, err
}

// CountSince returns the number of messages created at or after since.
func (r *MessageRepo) CountSince(ctx domain.Context, since time.Time) (int64, error) {
	var n int64
	err := r.scalar(ctx, "CountSince", `SELECT COUNT(*) FROM messages WHERE created_at >= $1`, &n, since)
	return n, err
}

// AvgLength returns the average content length in characters, 0 when empty.
func (r *MessageRepo) AvgLength(ctx domain.Context) (float64, error) {
	var avg float64
	err := r.scalar(ctx, "AvgLength", `SELECT COALESCE(AVG(char_length(content)), 0)::float8 FROM messages`, &avg)
	return avg, err
}

// CountByDay returns per-day message counts for the last days days (UTC),
// oldest first. Days without messages are omitted.
func (r *MessageRepo) CountByDay(ctx domain.Context, days int) ([]domain.DayCount, error) {
	ctx, span := startSpan(ctx, "messages.CountByDay", "SELECT")
	defer span.End()
	if days <= 0 {
		days = 30
	}
	since := time.Now().UTC().Truncate(24*time.Hour).AddDate(0, 0, -(days - 1))
	q := `SELECT date_trunc('day', created_at AT TIME ZONE 'UTC') AS day, COUNT(*)
		FROM messages WHERE created_at >= $1 GROUP BY day ORDER BY day`
	rows, err := r.Pool.Query(ctx, q, since)
	if err != nil {
		return nil, fmt.Errorf("op=message.count_by_day: %w", err)
	}
	defer rows.Close()
	out := make([]domain.DayCount, 0, days)
	for rows.Next() {
		var dc domain.DayCount
		if err := rows.Scan(&dc.Day, &dc.Count); err != nil {
			return nil, fmt.Errorf("op=message.count_by_day: %w", err)
		}
		dc.Day = dc.Day.UTC()
		out = append(out, dc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=message.count_by_day: %w", err)
	}
	return out, nil
}

// CountByHour returns message counts grouped by hour of day (UTC) for
// messages created at or after since.
func (r *MessageRepo) CountByHour(ctx domain.Context, since time.Time) ([]domain.HourCount, error) {
	ctx, span := startSpan(ctx, "messages.CountByHour", "SELECT")
	defer span.End()
	q := `SELECT EXTRACT(HOUR FROM created_at AT TIME ZONE 'UTC')::int AS hour, COUNT(*)
		FROM messages WHERE created_at >= $1 GROUP BY hour ORDER BY hour`
	rows, err := r.Pool.Query(ctx, q, since)
	if err != nil {
		return nil, fmt.Errorf("op=message.count_by_hour: %w", err)
	}
	defer rows.Close()
	out := make([]domain.HourCount, 0, 24)
	for rows.Next() {
		var hc domain.HourCount
		if err := rows.Scan(&hc.Hour, &hc.Count); err != nil {
			return nil, fmt.Errorf("op=message.count_by_hour: %w", err)
		}
		out = append(out, hc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=message.count_by_hour: %w", err)
	}
	return out, nil
}

// DeleteOlderThan removes messages created before cutoff and returns how many.
func (r *MessageRepo) DeleteOlderThan(ctx domain.Context, cutoff time.Time) (int64, error) {
	ctx, span := startSpan(ctx, "messages.DeleteOlderThan", "DELETE")
	defer span.End()
	tag, err := r.Pool.Exec(ctx, `DELETE FROM messages WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("op=message.delete_older_than: %w", err)
	}
	return tag.RowsAffected(), nil
}
