package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/invoice-intake/constants"
	"github.com/joseph-ayodele/invoice-intake/internal/common"
)

const runsTable = "pipeline_runs"

const createRunsTable = `CREATE TABLE IF NOT EXISTS pipeline_runs (
	id             TEXT PRIMARY KEY,
	request_id     TEXT NOT NULL DEFAULT '',
	kind           TEXT NOT NULL DEFAULT '',
	state          TEXT NOT NULL,
	failed_stage   TEXT NOT NULL DEFAULT '',
	failure_kind   TEXT NOT NULL DEFAULT '',
	error          TEXT NOT NULL DEFAULT '',
	canonical_name TEXT NOT NULL DEFAULT '',
	object_id      TEXT NOT NULL DEFAULT '',
	link           TEXT NOT NULL DEFAULT '',
	started_at     TEXT NOT NULL,
	finished_at    TEXT
)`

const createRunsIndex = `CREATE INDEX IF NOT EXISTS pipeline_runs_started_at_idx ON pipeline_runs (started_at)`

// Timestamps are stored as fixed-width UTC text so they sort lexically on every dialect.
const tsLayout = "2006-01-02T15:04:05.000000Z"

var runColumns = []string{
	"id", "request_id", "kind", "state", "failed_stage", "failure_kind",
	"error", "canonical_name", "object_id", "link", "started_at", "finished_at",
}

// Run is one row of pipeline_runs.
type Run struct {
	ID            string             `json:"id"`
	RequestID     string             `json:"request_id,omitempty"`
	Kind          string             `json:"kind"`
	State         constants.RunState `json:"state"`
	FailedStage   string             `json:"failed_stage,omitempty"`
	FailureKind   string             `json:"failure_kind,omitempty"`
	Error         string             `json:"error,omitempty"`
	CanonicalName string             `json:"canonical_name,omitempty"`
	ObjectID      string             `json:"object_id,omitempty"`
	Link          string             `json:"link,omitempty"`
	StartedAt     time.Time          `json:"started_at"`
	FinishedAt    *time.Time         `json:"finished_at,omitempty"`
}

// Journal records pipeline runs and their state transitions.
type Journal struct {
	db  *DB
	log *slog.Logger
	now func() time.Time
}

// NewJournal creates the pipeline_runs table if needed.
func NewJournal(ctx context.Context, db *DB, log *slog.Logger) (*Journal, error) {
	if log == nil {
		log = slog.Default()
	}
	for _, stmt := range []string{createRunsTable, createRunsIndex} {
		if err := db.drv.Exec(ctx, stmt, []any{}, nil); err != nil {
			return nil, common.NewAppError("DB_MIGRATE", "create "+runsTable, fmt.Errorf("%w: %v", common.ErrDatabase, err))
		}
	}
	return &Journal{db: db, log: log, now: time.Now}, nil
}

func (j *Journal) Start(ctx context.Context, run Run) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = j.now()
	}
	if run.State == "" {
		run.State = constants.StateReceived
	}
	query, args := j.db.builder().Insert(runsTable).
		Columns("id", "request_id", "kind", "state", "started_at").
		Values(run.ID, run.RequestID, run.Kind, string(run.State), formatTS(run.StartedAt)).
		Query()
	if err := j.db.drv.Exec(ctx, query, args, nil); err != nil {
		j.log.Error("journal.start.failed", "run_id", run.ID, "error", err)
		return fmt.Errorf("%w: insert run: %v", common.ErrDatabase, err)
	}
	j.log.Debug("journal.start.ok", "run_id", run.ID, "request_id", run.RequestID)
	return nil
}

func (j *Journal) Transition(ctx context.Context, runID string, state constants.RunState) error {
	query, args := j.db.builder().Update(runsTable).
		Set("state", string(state)).
		Where(entsql.EQ("id", runID)).
		Query()
	if err := j.db.drv.Exec(ctx, query, args, nil); err != nil {
		j.log.Error("journal.transition.failed", "run_id", runID, "state", state, "error", err)
		return fmt.Errorf("%w: update run state: %v", common.ErrDatabase, err)
	}
	return nil
}

// Finish stores the terminal state and everything the run produced.
func (j *Journal) Finish(ctx context.Context, run Run) error {
	finished := j.now()
	if run.FinishedAt != nil {
		finished = *run.FinishedAt
	}
	query, args := j.db.builder().Update(runsTable).
		Set("state", string(run.State)).
		Set("kind", run.Kind).
		Set("failed_stage", run.FailedStage).
		Set("failure_kind", run.FailureKind).
		Set("error", run.Error).
		Set("canonical_name", run.CanonicalName).
		Set("object_id", run.ObjectID).
		Set("link", run.Link).
		Set("finished_at", formatTS(finished)).
		Where(entsql.EQ("id", run.ID)).
		Query()
	if err := j.db.drv.Exec(ctx, query, args, nil); err != nil {
		j.log.Error("journal.finish.failed", "run_id", run.ID, "error", err)
		return fmt.Errorf("%w: finish run: %v", common.ErrDatabase, err)
	}
	j.log.Debug("journal.finish.ok", "run_id", run.ID, "state", run.State)
	return nil
}

// Get returns one run or an error wrapping common.ErrNotFound.
func (j *Journal) Get(ctx context.Context, runID string) (Run, error) {
	query, args := j.db.builder().Select(runColumns...).
		From(entsql.Table(runsTable)).
		Where(entsql.EQ("id", runID)).
		Query()
	runs, err := j.query(ctx, query, args)
	if err != nil {
		return Run{}, err
	}
	if len(runs) == 0 {
		return Run{}, fmt.Errorf("run %s: %w", runID, common.ErrNotFound)
	}
	return runs[0], nil
}

// Recent lists the newest runs first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	query, args := j.db.builder().Select(runColumns...).
		From(entsql.Table(runsTable)).
		OrderBy(entsql.Desc("started_at")).
		Limit(limit).
		Query()
	return j.query(ctx, query, args)
}

func (j *Journal) query(ctx context.Context, query string, args []any) ([]Run, error) {
	var rows entsql.Rows
	if err := j.db.drv.Query(ctx, query, args, &rows); err != nil {
		return nil, fmt.Errorf("%w: query runs: %v", common.ErrDatabase, err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r         Run
			state     string
			startedAt string
			finished  sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.RequestID, &r.Kind, &state, &r.FailedStage, &r.FailureKind,
			&r.Error, &r.CanonicalName, &r.ObjectID, &r.Link, &startedAt, &finished); err != nil {
			return nil, fmt.Errorf("%w: scan run: %v", common.ErrDatabase, err)
		}
		r.State = constants.RunState(state)
		r.StartedAt = parseTS(startedAt)
		if finished.Valid {
			t := parseTS(finished.String)
			r.FinishedAt = &t
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: iterate runs: %v", common.ErrDatabase, err)
	}
	return out, nil
}

func formatTS(t time.Time) string { return t.UTC().Format(tsLayout) }

func parseTS(s string) time.Time {
	t, err := time.Parse(tsLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
