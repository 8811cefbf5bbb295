// Package data holds the Postgres repositories of the session bridge.
package data

import (
	"context"
	"database/sql"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/target/session-bridge/internal/data/pgxutil"
	domainauth "github.com/target/session-bridge/internal/domain/auth"
	apperrors "github.com/target/session-bridge/internal/errors"
	"github.com/target/session-bridge/internal/ports"
)

const (
	auditColumns = "id, operation, outcome, subject, client_ip, user_agent, created_at"

	// maxUserAgentLen bounds stored user agents; longer values are truncated.
	maxUserAgentLen = 512
)

var _ ports.AuditSink = (*AuditRepo)(nil)

// AuditRepo persists session-bridge audit events in session_audit.
type AuditRepo struct {
	DB  *sql.DB
	Now func() time.Time
}

// NewAuditRepo creates a new AuditRepo.
func NewAuditRepo(db *sql.DB) *AuditRepo {
	return &AuditRepo{DB: db, Now: time.Now}
}

// Record inserts ev. A missing ID or timestamp is filled in.
func (r *AuditRepo) Record(ctx context.Context, ev domainauth.AuditEvent) error {
	if r == nil || r.DB == nil {
		return errors.New("audit repository not configured")
	}
	if ev.Operation == "" || ev.Outcome == "" {
		return apperrors.Validation("audit event requires operation and outcome")
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = r.now()
	}
	ev.UserAgent = truncateUTF8(ev.UserAgent, maxUserAgentLen)

	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO session_audit (`+auditColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ev.ID, string(ev.Operation), string(ev.Outcome), ev.Subject, ev.ClientIP, ev.UserAgent, ev.CreatedAt.UTC(),
	)
	return apperrors.MapDBError(err)
}

// auditRow mirrors a session_audit row for pgx struct scanning.
type auditRow struct {
	ID        string    `db:"id"`
	Operation string    `db:"operation"`
	Outcome   string    `db:"outcome"`
	Subject   string    `db:"subject"`
	ClientIP  string    `db:"client_ip"`
	UserAgent string    `db:"user_agent"`
	CreatedAt time.Time `db:"created_at"`
}

// Recent returns up to limit events, newest first.
func (r *AuditRepo) Recent(ctx context.Context, limit int) ([]domainauth.AuditEvent, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	var rows []auditRow
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		res, err := conn.Query(ctx,
			`SELECT id::text, operation, outcome, subject, client_ip, user_agent, created_at
			 FROM session_audit ORDER BY created_at DESC LIMIT $1`, limit)
		if err != nil {
			return err
		}
		rows, err = pgx.CollectRows(res, pgx.RowToStructByName[auditRow])
		return err
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}

	out := make([]domainauth.AuditEvent, 0, len(rows))
	for _, row := range rows {
		out = append(out, domainauth.AuditEvent{
			ID:        row.ID,
			Operation: domainauth.Operation(row.Operation),
			Outcome:   domainauth.Outcome(row.Outcome),
			Subject:   row.Subject,
			ClientIP:  row.ClientIP,
			UserAgent: row.UserAgent,
			CreatedAt: row.CreatedAt,
		})
	}
	return out, nil
}

// DeleteOlderThan removes events created before cutoff and reports how many were removed.
func (r *AuditRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM session_audit WHERE created_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, apperrors.MapDBError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperrors.MapDBError(err)
	}
	return n, nil
}

// DeleteOlderThanBatch removes at most batchSize events created before cutoff, oldest first.
func (r *AuditRepo) DeleteOlderThanBatch(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		return r.DeleteOlderThan(ctx, cutoff)
	}
	const q = `
DELETE FROM session_audit
WHERE id IN (
	SELECT id FROM session_audit
	WHERE created_at < $1
	ORDER BY created_at
	LIMIT $2
)`
	res, err := r.DB.ExecContext(ctx, q, cutoff.UTC(), batchSize)
	if err != nil {
		return 0, apperrors.MapDBError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperrors.MapDBError(err)
	}
	return n, nil
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func (r *AuditRepo) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}
