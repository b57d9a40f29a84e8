package campaign

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"batchcall-platform/pkg/utils"
)

// PostgresRepo persists campaigns in Postgres via database/sql (pgx stdlib
// driver).
//
// Assumed tables:
// - batch_calls (campaign rows; occurrence rows carry parent_batch_id)
// - batch_call_recipients, keyed by (batch_id, sort_order) with a UUID id
//
// window_days is stored as a comma-joined text column ("0,1,2" etc.) to keep
// the row scannable without array adapters.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const campaignColumns = `
id, user_id, name, agent_id, caller_id, status, send_now, scheduled_at,
window_start_time, window_end_time, window_days,
reserved_concurrency, max_concurrency,
recurrence_type, recurrence_interval, recurrence_end_condition, recurrence_max_runs, recurrence_end_date,
recurrence_run_count, parent_batch_id,
total_recipients, completed_count, failed_count,
created_at, updated_at, started_at, completed_at`

func (r *PostgresRepo) CreateCampaign(ctx context.Context, c Campaign, recipients []Recipient) error {
	if c.ID == "" || c.UserID == "" {
		return ErrInvalidArgument
	}
	return utils.WithTx(ctx, r.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		if err := insertCampaign(ctx, tx, c); err != nil {
			return err
		}
		return insertRecipients(ctx, tx, c.ID, recipients)
	})
}

func insertCampaign(ctx context.Context, tx *sql.Tx, c Campaign) error {
	const q = `
INSERT INTO batch_calls (` + campaignColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27)
`
	_, err := tx.ExecContext(ctx, q,
		c.ID, c.UserID, c.Name, nullable(c.AgentID), c.CallerID, string(c.Status), c.SendNow, c.ScheduledAt,
		c.Window.Start, c.Window.End, encodeDays(c.Window.Days),
		c.ReservedConcurrency, c.MaxConcurrencyHint,
		string(c.Recurrence.Type), c.Recurrence.Interval, string(c.Recurrence.End), c.Recurrence.MaxRuns, nullTime(c.Recurrence.EndDate),
		c.RunCount, nullable(c.ParentID),
		c.TotalRecipients, c.CompletedCount, c.FailedCount,
		c.CreatedAt, c.UpdatedAt, c.StartedAt, c.CompletedAt,
	)
	return err
}

func insertRecipients(ctx context.Context, tx *sql.Tx, batchID string, recipients []Recipient) error {
	const q = `
INSERT INTO batch_call_recipients (id, batch_id, name, phone_number, sort_order, status)
VALUES ($1,$2,$3,$4,$5,$6)
`
	for _, rec := range recipients {
		if _, err := tx.ExecContext(ctx, q, rec.ID, batchID, rec.Name, rec.PhoneNumber, rec.SortOrder, string(rec.Status)); err != nil {
			return err
		}
	}
	return nil
}

func (r *PostgresRepo) GetCampaign(ctx context.Context, userID, batchID string) (Campaign, error) {
	const q = `SELECT ` + campaignColumns + ` FROM batch_calls WHERE user_id = $1 AND id = $2`
	return scanCampaign(r.db.QueryRowContext(ctx, q, userID, batchID))
}

func (r *PostgresRepo) GetCampaignByID(ctx context.Context, batchID string) (Campaign, error) {
	const q = `SELECT ` + campaignColumns + ` FROM batch_calls WHERE id = $1`
	return scanCampaign(r.db.QueryRowContext(ctx, q, batchID))
}

func (r *PostgresRepo) ListCampaigns(ctx context.Context, userID string, status Status, limit, offset int) ([]Campaign, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT ` + campaignColumns + ` FROM batch_calls WHERE user_id = $1 AND parent_batch_id IS NULL`
	args := []any{userID}
	if status != "" {
		q += ` AND status = $2`
		args = append(args, string(status))
	}
	q += ` ORDER BY created_at DESC LIMIT ` + strconv.Itoa(limit) + ` OFFSET ` + strconv.Itoa(offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Campaign, 0)
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) UpdateDraft(ctx context.Context, c Campaign, recipients []Recipient) error {
	return utils.WithTx(ctx, r.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		const q = `
UPDATE batch_calls SET
  name = $3, agent_id = $4, caller_id = $5, send_now = $6, scheduled_at = $7,
  window_start_time = $8, window_end_time = $9, window_days = $10,
  reserved_concurrency = $11, max_concurrency = $12,
  recurrence_type = $13, recurrence_interval = $14, recurrence_end_condition = $15,
  recurrence_max_runs = $16, recurrence_end_date = $17,
  total_recipients = $18, updated_at = $19
WHERE user_id = $1 AND id = $2 AND status = 'draft'
`
		res, err := tx.ExecContext(ctx, q,
			c.UserID, c.ID,
			c.Name, nullable(c.AgentID), c.CallerID, c.SendNow, c.ScheduledAt,
			c.Window.Start, c.Window.End, encodeDays(c.Window.Days),
			c.ReservedConcurrency, c.MaxConcurrencyHint,
			string(c.Recurrence.Type), c.Recurrence.Interval, string(c.Recurrence.End),
			c.Recurrence.MaxRuns, nullTime(c.Recurrence.EndDate),
			c.TotalRecipients, c.UpdatedAt,
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM batch_call_recipients WHERE batch_id = $1`, c.ID); err != nil {
			return err
		}
		return insertRecipients(ctx, tx, c.ID, recipients)
	})
}

func (r *PostgresRepo) SetStatus(ctx context.Context, batchID string, status Status, now time.Time) error {
	var q string
	if status == StatusCompleted {
		q = `UPDATE batch_calls SET status = $2, updated_at = $3, completed_at = $3 WHERE id = $1`
	} else {
		q = `UPDATE batch_calls SET status = $2, updated_at = $3 WHERE id = $1`
	}
	res, err := r.db.ExecContext(ctx, q, batchID, string(status), now)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) MarkRunning(ctx context.Context, batchID string, rerun bool, now time.Time) error {
	return utils.WithTx(ctx, r.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		if rerun {
			const reset = `
UPDATE batch_call_recipients
SET status = 'pending', call_record_id = NULL, error_message = NULL, attempted_at = NULL, completed_at = NULL
WHERE batch_id = $1 AND status <> 'pending'
`
			if _, err := tx.ExecContext(ctx, reset, batchID); err != nil {
				return err
			}
		}
		q := `UPDATE batch_calls SET status = 'running', started_at = $2, updated_at = $2, completed_at = NULL`
		if rerun {
			q += `, completed_count = 0, failed_count = 0`
		}
		q += ` WHERE id = $1`
		res, err := tx.ExecContext(ctx, q, batchID, now)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (r *PostgresRepo) SkipPendingRecipients(ctx context.Context, batchID string, now time.Time) error {
	const q = `UPDATE batch_call_recipients SET status = 'skipped' WHERE batch_id = $1 AND status = 'pending'`
	_, err := r.db.ExecContext(ctx, q, batchID)
	return err
}

const recipientColumns = `
id, batch_id, name, phone_number, sort_order, status, error_message, call_record_id, attempted_at, completed_at`

func (r *PostgresRepo) ListRecipients(ctx context.Context, batchID string) ([]Recipient, error) {
	const q = `SELECT ` + recipientColumns + ` FROM batch_call_recipients WHERE batch_id = $1 ORDER BY sort_order`
	return r.queryRecipients(ctx, q, batchID)
}

func (r *PostgresRepo) ListPendingRecipients(ctx context.Context, batchID string, limit int) ([]Recipient, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT ` + recipientColumns + ` FROM batch_call_recipients WHERE batch_id = $1 AND status = 'pending' ORDER BY sort_order LIMIT ` + strconv.Itoa(limit)
	return r.queryRecipients(ctx, q, batchID)
}

func (r *PostgresRepo) queryRecipients(ctx context.Context, q string, args ...any) ([]Recipient, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Recipient, 0)
	for rows.Next() {
		rec, err := scanRecipient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) CountRecipientsInStatus(ctx context.Context, batchID string, statuses ...RecipientStatus) (int, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	placeholders := make([]string, len(statuses))
	args := []any{batchID}
	for i, s := range statuses {
		placeholders[i] = "$" + strconv.Itoa(i+2)
		args = append(args, string(s))
	}
	q := `SELECT COUNT(*) FROM batch_call_recipients WHERE batch_id = $1 AND status IN (` + strings.Join(placeholders, ",") + `)`
	var n int
	if err := r.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *PostgresRepo) GetRecipient(ctx context.Context, recipientID string) (Recipient, error) {
	const q = `SELECT ` + recipientColumns + ` FROM batch_call_recipients WHERE id = $1`
	return scanRecipient(r.db.QueryRowContext(ctx, q, recipientID))
}

func (r *PostgresRepo) UpdateRecipient(ctx context.Context, rec Recipient) error {
	const q = `
UPDATE batch_call_recipients
SET status = $2, error_message = $3, call_record_id = $4, attempted_at = $5, completed_at = $6
WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, q, rec.ID, string(rec.Status), nullable(rec.ErrorMessage), nullable(rec.CallRecordID), rec.AttemptedAt, rec.CompletedAt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) ResetRecipient(ctx context.Context, recipientID string, now time.Time) error {
	const q = `
UPDATE batch_call_recipients
SET status = 'pending', error_message = NULL, call_record_id = NULL, attempted_at = NULL, completed_at = NULL
WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, q, recipientID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) AddCounters(ctx context.Context, batchID string, completedDelta, failedDelta int) error {
	const q = `UPDATE batch_calls SET completed_count = completed_count + $2, failed_count = failed_count + $3 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, q, batchID, completedDelta, failedDelta)
	return err
}

func (r *PostgresRepo) CreateOccurrence(ctx context.Context, o Occurrence) error {
	const q = `
INSERT INTO batch_call_occurrences (id, parent_batch_id, occurrence_number, status, total_recipients, completed_count, failed_count, started_at, completed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`
	_, err := r.db.ExecContext(ctx, q, o.ID, o.ParentID, o.Number, string(o.Status), o.TotalRecipients, o.CompletedCount, o.FailedCount, o.StartedAt, o.CompletedAt)
	return err
}

func (r *PostgresRepo) ListOccurrences(ctx context.Context, parentID string) ([]Occurrence, error) {
	const q = `
SELECT id, parent_batch_id, occurrence_number, status, total_recipients, completed_count, failed_count, started_at, completed_at
FROM batch_call_occurrences
WHERE parent_batch_id = $1
ORDER BY occurrence_number DESC
`
	rows, err := r.db.QueryContext(ctx, q, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Occurrence, 0)
	for rows.Next() {
		var o Occurrence
		var status string
		if err := rows.Scan(&o.ID, &o.ParentID, &o.Number, &status, &o.TotalRecipients, &o.CompletedCount, &o.FailedCount, &o.StartedAt, &o.CompletedAt); err != nil {
			return nil, err
		}
		o.Status = Status(status)
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) IncrementRunCount(ctx context.Context, parentID string, now time.Time) error {
	const q = `UPDATE batch_calls SET recurrence_run_count = recurrence_run_count + 1, updated_at = $2 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, parentID, now)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) ScheduleNextRun(ctx context.Context, batchID string, next, now time.Time) error {
	const q = `UPDATE batch_calls SET status = 'recurring', scheduled_at = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, batchID, next, now)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]Campaign, error) {
	if limit <= 0 {
		limit = 10
	}
	q := `SELECT ` + campaignColumns + ` FROM batch_calls WHERE status IN ('scheduled','recurring') AND scheduled_at <= $1 LIMIT ` + strconv.Itoa(limit)
	rows, err := r.db.QueryContext(ctx, q, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCampaigns(rows)
}

func (r *PostgresRepo) ListRunning(ctx context.Context, limit int) ([]Campaign, error) {
	if limit <= 0 {
		limit = 10
	}
	q := `SELECT ` + campaignColumns + ` FROM batch_calls WHERE status = 'running' LIMIT ` + strconv.Itoa(limit)
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCampaigns(rows)
}

func collectCampaigns(rows *sql.Rows) ([]Campaign, error) {
	out := make([]Campaign, 0)
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCampaign(row rowScanner) (Campaign, error) {
	var c Campaign
	var agentID, parentID, days sql.NullString
	var status, ruleType, ruleEnd string
	var ruleEndDate sql.NullTime
	err := row.Scan(
		&c.ID, &c.UserID, &c.Name, &agentID, &c.CallerID, &status, &c.SendNow, &c.ScheduledAt,
		&c.Window.Start, &c.Window.End, &days,
		&c.ReservedConcurrency, &c.MaxConcurrencyHint,
		&ruleType, &c.Recurrence.Interval, &ruleEnd, &c.Recurrence.MaxRuns, &ruleEndDate,
		&c.RunCount, &parentID,
		&c.TotalRecipients, &c.CompletedCount, &c.FailedCount,
		&c.CreatedAt, &c.UpdatedAt, &c.StartedAt, &c.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Campaign{}, ErrNotFound
		}
		return Campaign{}, err
	}
	c.AgentID = agentID.String
	c.ParentID = parentID.String
	c.Status = Status(status)
	c.Window.Days = decodeDays(days.String)
	c.Recurrence.Type = RuleType(ruleType)
	c.Recurrence.End = EndCondition(ruleEnd)
	if ruleEndDate.Valid {
		c.Recurrence.EndDate = ruleEndDate.Time
	}
	return c, nil
}

func scanRecipient(row rowScanner) (Recipient, error) {
	var rec Recipient
	var status string
	var errMsg, callRecordID sql.NullString
	err := row.Scan(
		&rec.ID, &rec.BatchID, &rec.Name, &rec.PhoneNumber, &rec.SortOrder,
		&status, &errMsg, &callRecordID, &rec.AttemptedAt, &rec.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Recipient{}, ErrNotFound
		}
		return Recipient{}, err
	}
	rec.Status = RecipientStatus(status)
	rec.ErrorMessage = errMsg.String
	rec.CallRecordID = callRecordID.String
	return rec, nil
}

func encodeDays(days []time.Weekday) string {
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(int(d))
	}
	return strings.Join(parts, ",")
}

func decodeDays(s string) []time.Weekday {
	if s == "" {
		return nil
	}
	var out []time.Weekday
	for _, p := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			continue
		}
		out = append(out, time.Weekday(n))
	}
	return out
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
