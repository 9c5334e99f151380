package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// itemColumns is the scan list shared by every query returning full rows.
const itemColumns = "id, payload, priority, status, attempts, last_error, available_at, created_at, updated_at"

var tableNameRE = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Postgres is the durable backend: one table per topic, items surviving
// restarts. Dequeue performs an atomic claim via FOR UPDATE SKIP LOCKED so
// no two workers can claim the same row.
//
// There is no claim lease: a worker that crashes mid-Processing leaves the
// row in status 'processing' permanently. Recovery relies on operators (or a
// future reclaim migration), not on the queue itself; run exactly one worker
// process per topic.
//
// The wake notifier is in-process only. A producer in another process will
// not wake this worker; the worker's recovery-interval fallback covers that
// case.
type Postgres[T Payload] struct {
	pool      *pgxpool.Pool
	table     string
	batchSize int
	notifier  *Notifier
}

// NewPostgres creates a durable queue over an existing table (see
// migrations/). The topic name doubles as the table name.
func NewPostgres[T Payload](pool *pgxpool.Pool, topic string, batchSize int) (*Postgres[T], error) {
	if !tableNameRE.MatchString(topic) {
		return nil, fmt.Errorf("invalid topic name %q", topic)
	}
	if batchSize < 1 {
		batchSize = 1
	}
	return &Postgres[T]{
		pool:      pool,
		table:     topic,
		batchSize: batchSize,
		notifier:  NewNotifier(),
	}, nil
}

func (q *Postgres[T]) Enqueue(ctx context.Context, payload T, priority int) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	id := uuid.New().String()
	now := time.Now().UTC()
	_, err = q.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, session_id, payload, priority, status, attempts, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, '', $6, $6)`, q.table),
		id, payload.SessionKey(), body, priority, StatusPending, now,
	)
	if err != nil {
		return "", fmt.Errorf("insert %s item: %w", q.table, err)
	}

	q.notifier.Notify()
	return id, nil
}

func (q *Postgres[T]) Dequeue(ctx context.Context) (*Item[T], error) {
	// The inner select orders by priority then age and skips rows already
	// locked by a concurrent claimer; the update is the claim itself.
	row := q.pool.QueryRow(ctx, fmt.Sprintf(`
		UPDATE %[1]s
		SET status = $1, updated_at = NOW()
		WHERE id = (
			SELECT id FROM %[1]s
			WHERE status = $2 OR (status = $3 AND available_at <= NOW())
			ORDER BY priority DESC, created_at ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+itemColumns, q.table),
		StatusProcessing, StatusPending, StatusDelayed,
	)

	it, err := q.scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue from %s: %w", q.table, err)
	}
	return it, nil
}

func (q *Postgres[T]) Peek(ctx context.Context) (*Item[T], error) {
	row := q.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT `+itemColumns+`
		FROM %s
		WHERE status = $1 OR (status = $2 AND available_at <= NOW())
		ORDER BY priority DESC, created_at ASC
		LIMIT 1`, q.table),
		StatusPending, StatusDelayed,
	)

	it, err := q.scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("peek %s: %w", q.table, err)
	}
	return it, nil
}

func (q *Postgres[T]) Complete(ctx context.Context, id string) error {
	tag, err := q.pool.Exec(ctx, fmt.Sprintf(`
		UPDATE %s SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3`, q.table),
		StatusCompleted, id, StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("complete %s item: %w", q.table, err)
	}
	if tag.RowsAffected() == 0 {
		return q.transitionFailure(ctx, id, StatusCompleted)
	}
	return nil
}

func (q *Postgres[T]) Fail(ctx context.Context, id string, errMsg string) error {
	tag, err := q.pool.Exec(ctx, fmt.Sprintf(`
		UPDATE %s
		SET status = $1, attempts = attempts + 1, last_error = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4`, q.table),
		StatusFailed, errMsg, id, StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("fail %s item: %w", q.table, err)
	}
	if tag.RowsAffected() == 0 {
		return q.transitionFailure(ctx, id, StatusFailed)
	}
	return nil
}

// Delay parks the item until the given time. Delaying a processing item
// releases the claim, so a worker that cannot act on an item yet hands it
// back instead of dead-lettering it.
func (q *Postgres[T]) Delay(ctx context.Context, id string, until time.Time) error {
	tag, err := q.pool.Exec(ctx, fmt.Sprintf(`
		UPDATE %s SET status = $1, available_at = $2, updated_at = NOW()
		WHERE id = $3 AND status IN ($4, $5, $1)`, q.table),
		StatusDelayed, until.UTC(), id, StatusPending, StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("delay %s item: %w", q.table, err)
	}
	if tag.RowsAffected() == 0 {
		return q.transitionFailure(ctx, id, StatusDelayed)
	}
	return nil
}

func (q *Postgres[T]) Get(ctx context.Context, id string) (*Item[T], error) {
	row := q.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT "+itemColumns+" FROM %s WHERE id = $1", q.table), id)

	it, err := q.scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s item: %w", q.table, err)
	}
	return it, nil
}

func (q *Postgres[T]) ListByStatus(ctx context.Context, status Status) ([]*Item[T], error) {
	rows, err := q.pool.Query(ctx, fmt.Sprintf(`
		SELECT `+itemColumns+`
		FROM %s WHERE status = $1
		ORDER BY priority DESC, created_at ASC`, q.table),
		status,
	)
	if err != nil {
		return nil, fmt.Errorf("list %s by status: %w", q.table, err)
	}
	defer rows.Close()
	return q.scanItems(rows)
}

func (q *Postgres[T]) Depth(ctx context.Context) (int, error) {
	var n int
	err := q.pool.QueryRow(ctx, fmt.Sprintf(
		"SELECT COUNT(*) FROM %s WHERE status IN ($1, $2)", q.table),
		StatusPending, StatusDelayed,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("depth of %s: %w", q.table, err)
	}
	return n, nil
}

func (q *Postgres[T]) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	tag, err := q.pool.Exec(ctx, fmt.Sprintf(`
		DELETE FROM %s
		WHERE status IN ($1, $2) AND updated_at < $3`, q.table),
		StatusCompleted, StatusFailed, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("cleanup %s: %w", q.table, err)
	}
	return int(tag.RowsAffected()), nil
}

func (q *Postgres[T]) Notifier() *Notifier { return q.notifier }

// ---- ProcessingQueue ----

func (q *Postgres[T]) BatchSize() int { return q.batchSize }

func (q *Postgres[T]) ProcessingCount(ctx context.Context) (int, error) {
	var n int
	err := q.pool.QueryRow(ctx, fmt.Sprintf(
		"SELECT COUNT(*) FROM %s WHERE status = $1", q.table),
		StatusProcessing,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("processing count of %s: %w", q.table, err)
	}
	return n, nil
}

func (q *Postgres[T]) HasCapacity(ctx context.Context) (bool, error) {
	n, err := q.ProcessingCount(ctx)
	if err != nil {
		return false, err
	}
	return n < q.batchSize, nil
}

// ---- ApprovalQueue ----

func (q *Postgres[T]) ListBySession(ctx context.Context, sessionID string) ([]*Item[T], error) {
	rows, err := q.pool.Query(ctx, fmt.Sprintf(`
		SELECT `+itemColumns+`
		FROM %s
		WHERE session_id = $1 AND status IN ($2, $3)
		ORDER BY priority DESC, created_at ASC`, q.table),
		sessionID, StatusPending, StatusDelayed,
	)
	if err != nil {
		return nil, fmt.Errorf("list %s by session: %w", q.table, err)
	}
	defer rows.Close()
	return q.scanItems(rows)
}

func (q *Postgres[T]) GetHistory(ctx context.Context, sessionID string, limit int) ([]*Item[T], error) {
	rows, err := q.pool.Query(ctx, fmt.Sprintf(`
		SELECT `+itemColumns+`
		FROM %s
		WHERE session_id = $1 AND status IN ($2, $3)
		ORDER BY updated_at DESC
		LIMIT $4`, q.table),
		sessionID, StatusCompleted, StatusFailed, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("history of %s: %w", q.table, err)
	}
	defer rows.Close()
	return q.scanItems(rows)
}

func (q *Postgres[T]) ExpireOld(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	tag, err := q.pool.Exec(ctx, fmt.Sprintf(`
		DELETE FROM %s
		WHERE status IN ($1, $2) AND created_at < $3`, q.table),
		StatusPending, StatusDelayed, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("expire %s: %w", q.table, err)
	}
	return int(tag.RowsAffected()), nil
}

// ---- internals ----

// transitionFailure distinguishes "row missing" from "row in the wrong
// status" after a guarded update affected no rows.
func (q *Postgres[T]) transitionFailure(ctx context.Context, id string, to Status) error {
	it, err := q.Get(ctx, id)
	if err != nil {
		return err
	}
	if it == nil {
		return fmt.Errorf("%s %s: %w", to, id, ErrNotFound)
	}
	return fmt.Errorf("%s %s: invalid transition from %q", to, id, it.Status)
}

func (q *Postgres[T]) scanItem(row pgx.Row) (*Item[T], error) {
	var (
		it          Item[T]
		body        []byte
		availableAt *time.Time
	)
	err := row.Scan(
		&it.ID, &body, &it.Priority, &it.Status, &it.Attempts,
		&it.LastError, &availableAt, &it.CreatedAt, &it.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if availableAt != nil {
		it.AvailableAt = *availableAt
	}
	if err := json.Unmarshal(body, &it.Payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return &it, nil
}

func (q *Postgres[T]) scanItems(rows pgx.Rows) ([]*Item[T], error) {
	var out []*Item[T]
	for rows.Next() {
		it, err := q.scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

var (
	_ ProcessingQueue[payloadStub] = (*Postgres[payloadStub])(nil)
	_ ApprovalQueue[payloadStub]   = (*Postgres[payloadStub])(nil)
)
