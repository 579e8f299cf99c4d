package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"NewsDigest/internal/domain"
	"NewsDigest/internal/ports"
)

var (
	// ErrTaskNotFound is returned when no task exists for a date.
	ErrTaskNotFound = errors.New("task not found")
	// ErrCounterInvariant is returned when counters would break completed+failed <= total
	// or lower the stored total.
	ErrCounterInvariant = errors.New("task counter invariant violated")
)

const staleClaimError = "claim expired before completion"

var taskColumns = []string{
	"work_date", "status", "total_items", "completed_items", "failed_items", "created_at", "updated_at",
}

var itemColumns = []string{
	"work_date", "rank", "source", "external_id", "state", "claimed_by", "claimed_at",
	"title", "url", "author", "score", "comment_count",
	"translated_title", "summary", "comment_digest", "error",
}

// SQLRepository persists tasks, items and publications in Postgres or SQLite.
type SQLRepository struct {
	db  *sql.DB
	sb  sq.StatementBuilderType
	now func() time.Time
}

var _ ports.TaskStore = (*SQLRepository)(nil)

// NewSQLRepository wires a sql.DB opened with the given driver.
func NewSQLRepository(db *sql.DB, driver string) *SQLRepository {
	sb := sq.StatementBuilder.PlaceholderFormat(sq.Question)
	if driver == DriverPostgres {
		sb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	}
	return &SQLRepository{
		db:  db,
		sb:  sb,
		now: func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *SQLRepository) exec(ctx context.Context, db execer, b sq.Sqlizer) (int64, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// GetOrCreateTask inserts an INIT task for date unless one exists, then reads it.
func (r *SQLRepository) GetOrCreateTask(ctx context.Context, date string) (domain.Task, error) {
	now := r.now()
	insert := r.sb.Insert("tasks").
		Columns("work_date", "status", "created_at", "updated_at").
		Values(date, string(domain.TaskInit), now, now).
		Suffix("ON CONFLICT (work_date) DO NOTHING")
	if _, err := r.exec(ctx, r.db, insert); err != nil {
		return domain.Task{}, fmt.Errorf("insert task %s: %w", date, err)
	}
	return r.GetTask(ctx, date)
}

// GetTask reads the task for date.
func (r *SQLRepository) GetTask(ctx context.Context, date string) (domain.Task, error) {
	query, args, err := r.sb.Select(taskColumns...).From("tasks").Where(sq.Eq{"work_date": date}).ToSql()
	if err != nil {
		return domain.Task{}, fmt.Errorf("build query: %w", err)
	}

	task, err := scanTask(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, date)
	}
	if err != nil {
		return domain.Task{}, fmt.Errorf("load task %s: %w", date, err)
	}
	return task, nil
}

// ListTasks returns the most recent tasks first.
func (r *SQLRepository) ListTasks(ctx context.Context, limit int) ([]domain.Task, error) {
	b := r.sb.Select(taskColumns...).From("tasks").OrderBy("work_date DESC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return tasks, nil
}

// UpdateTaskStatus moves the task from -> to only if it is still in from. It returns
// false when another invocation changed the status first, or when counters are older than
// the stored ones: none of them ever decreases.
func (r *SQLRepository) UpdateTaskStatus(ctx context.Context, date string, from, to domain.TaskStatus, counters *domain.Counters) (bool, error) {
	if !domain.CanTransition(from, to) {
		return false, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
	}

	update := r.sb.Update("tasks").
		Set("status", string(to)).
		Set("updated_at", r.now()).
		Where(sq.Eq{"work_date": date, "status": string(from)})

	if counters != nil {
		if !counters.Valid() {
			return false, fmt.Errorf("%w: %+v", ErrCounterInvariant, *counters)
		}
		update = update.
			Set("total_items", counters.Total).
			Set("completed_items", counters.Completed).
			Set("failed_items", counters.Failed).
			Where(sq.LtOrEq{
				"total_items":     counters.Total,
				"completed_items": counters.Completed,
				"failed_items":    counters.Failed,
			})
	}

	n, err := r.exec(ctx, r.db, update)
	if err != nil {
		return false, fmt.Errorf("update task %s status: %w", date, err)
	}
	if n == 1 {
		return true, nil
	}

	current, err := r.GetTask(ctx, date)
	if err != nil {
		return false, err
	}
	if counters != nil && current.Status == from && current.TotalItems > counters.Total {
		return false, fmt.Errorf("%w: total %d would drop to %d", ErrCounterInvariant, current.TotalItems, counters.Total)
	}
	return false, nil
}

// SeedItems stores the candidate list as pending items and fixes the task total.
func (r *SQLRepository) SeedItems(ctx context.Context, date string, refs []domain.StoryRef) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin seed: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := r.now()
	for rank, ref := range refs {
		insert := r.sb.Insert("items").
			Columns("work_date", "rank", "source", "external_id", "state", "updated_at").
			Values(date, rank, ref.Source, ref.ID, string(domain.ItemPending), now).
			Suffix("ON CONFLICT (work_date, rank) DO NOTHING")
		if _, err := r.exec(ctx, tx, insert); err != nil {
			return 0, fmt.Errorf("insert item %s/%d: %w", date, rank, err)
		}
	}

	// placeholders are numbered once, by the outer statement
	countSQL, countArgs, err := sq.Select("COUNT(*)").From("items").Where(sq.Eq{"work_date": date}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}
	update := r.sb.Update("tasks").
		Set("total_items", sq.Expr("("+countSQL+")", countArgs...)).
		Set("updated_at", now).
		Where(sq.Eq{"work_date": date, "total_items": 0})
	if _, err := r.exec(ctx, tx, update); err != nil {
		return 0, fmt.Errorf("set task %s total: %w", date, err)
	}

	query, args, err := r.sb.Select("total_items").From("tasks").Where(sq.Eq{"work_date": date}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}
	var total int
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("%w: %s", ErrTaskNotFound, date)
		}
		return 0, fmt.Errorf("read task %s total: %w", date, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit seed: %w", err)
	}
	return total, nil
}

// ClaimPendingItems moves up to limit pending items to in_progress for owner. Each
// claim is a conditional write, so concurrent callers never receive the same item.
func (r *SQLRepository) ClaimPendingItems(ctx context.Context, date, owner string, limit int) ([]domain.Item, error) {
	if limit <= 0 {
		return nil, nil
	}

	candidates, err := r.pendingRanks(ctx, date, limit)
	if err != nil {
		return nil, err
	}

	now := r.now()
	var claimed []int
	for _, rank := range candidates {
		update := r.sb.Update("items").
			Set("state", string(domain.ItemInProgress)).
			Set("claimed_by", owner).
			Set("claimed_at", now).
			Set("updated_at", now).
			Where(sq.Eq{"work_date": date, "rank": rank, "state": string(domain.ItemPending)})
		n, err := r.exec(ctx, r.db, update)
		if err != nil {
			return nil, fmt.Errorf("claim item %s/%d: %w", date, rank, err)
		}
		if n == 1 {
			claimed = append(claimed, rank)
		}
	}
	if len(claimed) == 0 {
		return nil, nil
	}

	return r.queryItems(ctx, r.sb.Select(itemColumns...).From("items").
		Where(sq.Eq{"work_date": date, "rank": claimed, "claimed_by": owner}).
		OrderBy("rank"))
}

func (r *SQLRepository) pendingRanks(ctx context.Context, date string, limit int) ([]int, error) {
	query, args, err := r.sb.Select("rank").From("items").
		Where(sq.Eq{"work_date": date, "state": string(domain.ItemPending)}).
		OrderBy("rank").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pending items: %w", err)
	}
	defer rows.Close()

	var ranks []int
	for rows.Next() {
		var rank int
		if err := rows.Scan(&rank); err != nil {
			return nil, fmt.Errorf("scan rank: %w", err)
		}
		ranks = append(ranks, rank)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return ranks, nil
}

// CompleteItem finishes an item claimed by item.ClaimedBy. It returns false when the
// item is no longer in progress for that owner.
func (r *SQLRepository) CompleteItem(ctx context.Context, item domain.Item, state domain.ItemState) (bool, error) {
	if !domain.ItemInProgress.CanAdvance(state) {
		return false, fmt.Errorf("%w: item %s -> %s", domain.ErrInvalidTransition, domain.ItemInProgress, state)
	}

	update := r.sb.Update("items").
		Set("state", string(state)).
		Set("title", item.Title).
		Set("url", item.URL).
		Set("author", item.Author).
		Set("score", item.Score).
		Set("comment_count", item.CommentCount).
		Set("translated_title", item.TranslatedTitle).
		Set("summary", item.Summary).
		Set("comment_digest", item.CommentDigest).
		Set("error", item.Error).
		Set("updated_at", r.now()).
		Where(sq.Eq{
			"work_date":  item.Date,
			"rank":       item.Rank,
			"state":      string(domain.ItemInProgress),
			"claimed_by": item.ClaimedBy,
		})

	n, err := r.exec(ctx, r.db, update)
	if err != nil {
		return false, fmt.Errorf("complete item %s/%d: %w", item.Date, item.Rank, err)
	}
	return n == 1, nil
}

// FailStaleClaims marks in_progress items claimed before now-olderThan as failed.
func (r *SQLRepository) FailStaleClaims(ctx context.Context, date string, olderThan time.Duration) (int, error) {
	now := r.now()
	update := r.sb.Update("items").
		Set("state", string(domain.ItemFailed)).
		Set("error", staleClaimError).
		Set("updated_at", now).
		Where(sq.Eq{"work_date": date, "state": string(domain.ItemInProgress)}).
		Where(sq.Lt{"claimed_at": now.Add(-olderThan)})

	n, err := r.exec(ctx, r.db, update)
	if err != nil {
		return 0, fmt.Errorf("fail stale claims %s: %w", date, err)
	}
	return int(n), nil
}

// CountItems groups the items of date by state.
func (r *SQLRepository) CountItems(ctx context.Context, date string) (domain.ItemCounts, error) {
	query, args, err := r.sb.Select("state", "COUNT(*)").From("items").
		Where(sq.Eq{"work_date": date}).
		GroupBy("state").
		ToSql()
	if err != nil {
		return domain.ItemCounts{}, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return domain.ItemCounts{}, fmt.Errorf("count items %s: %w", date, err)
	}
	defer rows.Close()

	var counts domain.ItemCounts
	for rows.Next() {
		var (
			state string
			n     int
		)
		if err := rows.Scan(&state, &n); err != nil {
			return domain.ItemCounts{}, fmt.Errorf("scan count: %w", err)
		}
		switch domain.ItemState(state) {
		case domain.ItemPending:
			counts.Pending = n
		case domain.ItemInProgress:
			counts.InProgress = n
		case domain.ItemDone:
			counts.Done = n
		case domain.ItemFailed:
			counts.Failed = n
		default:
			return domain.ItemCounts{}, fmt.Errorf("count items %s: unknown item state %q", date, state)
		}
	}
	if err := rows.Err(); err != nil {
		return domain.ItemCounts{}, fmt.Errorf("rows iteration: %w", err)
	}
	return counts, nil
}

// ListItems returns every item of date ordered by rank.
func (r *SQLRepository) ListItems(ctx context.Context, date string) ([]domain.Item, error) {
	return r.queryItems(ctx, r.sb.Select(itemColumns...).From("items").
		Where(sq.Eq{"work_date": date}).
		OrderBy("rank"))
}

func (r *SQLRepository) queryItems(ctx context.Context, b sq.SelectBuilder) ([]domain.Item, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var items []domain.Item
	for rows.Next() {
		var (
			item      domain.Item
			state     string
			claimedAt sql.NullTime
		)
		if err := rows.Scan(
			&item.Date, &item.Rank, &item.Source, &item.ExternalID, &state, &item.ClaimedBy, &claimedAt,
			&item.Title, &item.URL, &item.Author, &item.Score, &item.CommentCount,
			&item.TranslatedTitle, &item.Summary, &item.CommentDigest, &item.Error,
		); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		item.State = domain.ItemState(state)
		if claimedAt.Valid {
			t := claimedAt.Time
			item.ClaimedAt = &t
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return items, nil
}

// PublishedTargets returns the targets that already received the digest of date.
func (r *SQLRepository) PublishedTargets(ctx context.Context, date string) (map[string]bool, error) {
	query, args, err := r.sb.Select("target").From("publications").Where(sq.Eq{"work_date": date}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query publications: %w", err)
	}
	defer rows.Close()

	result := make(map[string]bool)
	for rows.Next() {
		var target string
		if err := rows.Scan(&target); err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		result[target] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return result, nil
}

// MarkPublished records a successful publish of date to target.
func (r *SQLRepository) MarkPublished(ctx context.Context, date, target string) error {
	insert := r.sb.Insert("publications").
		Columns("work_date", "target", "published_at").
		Values(date, target, r.now()).
		Suffix("ON CONFLICT (work_date, target) DO NOTHING")
	if _, err := r.exec(ctx, r.db, insert); err != nil {
		return fmt.Errorf("mark %s published to %s: %w", date, target, err)
	}
	return nil
}

// AcquirePublishLease grants owner the right to publish date until ttl elapses.
// A lease already held by owner is extended.
func (r *SQLRepository) AcquirePublishLease(ctx context.Context, date, owner string, ttl time.Duration) (bool, error) {
	now := r.now()
	update := r.sb.Update("tasks").
		Set("lease_owner", owner).
		Set("lease_expires", now.Add(ttl)).
		Where(sq.Eq{"work_date": date}).
		Where(sq.Or{
			sq.Eq{"lease_owner": ""},
			sq.Eq{"lease_owner": owner},
			sq.Eq{"lease_expires": nil},
			sq.Lt{"lease_expires": now},
		})

	n, err := r.exec(ctx, r.db, update)
	if err != nil {
		return false, fmt.Errorf("acquire publish lease %s: %w", date, err)
	}
	return n == 1, nil
}

// ReleasePublishLease drops the lease if owner still holds it.
func (r *SQLRepository) ReleasePublishLease(ctx context.Context, date, owner string) error {
	update := r.sb.Update("tasks").
		Set("lease_owner", "").
		Set("lease_expires", nil).
		Where(sq.Eq{"work_date": date, "lease_owner": owner})
	if _, err := r.exec(ctx, r.db, update); err != nil {
		return fmt.Errorf("release publish lease %s: %w", date, err)
	}
	return nil
}

// ArchivePublishedBefore moves published tasks dated before date to ARCHIVED.
func (r *SQLRepository) ArchivePublishedBefore(ctx context.Context, date string) (int, error) {
	update := r.sb.Update("tasks").
		Set("status", string(domain.TaskArchived)).
		Set("updated_at", r.now()).
		Where(sq.Eq{"status": string(domain.TaskPublished)}).
		Where(sq.Lt{"work_date": date})

	n, err := r.exec(ctx, r.db, update)
	if err != nil {
		return 0, fmt.Errorf("archive tasks before %s: %w", date, err)
	}
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (domain.Task, error) {
	var (
		task   domain.Task
		status string
	)
	if err := row.Scan(&task.Date, &status, &task.TotalItems, &task.CompletedItems, &task.FailedItems, &task.CreatedAt, &task.UpdatedAt); err != nil {
		return domain.Task{}, err
	}

	parsed, err := domain.ParseTaskStatus(status)
	if err != nil {
		return domain.Task{}, fmt.Errorf("task %s: %w", task.Date, err)
	}
	task.Status = parsed
	return task, nil
}
