// ABOUTME: SQLite event journal persisting every broadcast envelope using modernc.org/sqlite
// ABOUTME: Replays history run by run, in Lamport order within each run

package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/2389/runi-mcp/internal/events"
	"github.com/2389/runi-mcp/internal/participant"
)

// DefaultLimit caps List when no limit is given.
const DefaultLimit = 100

// Journal is an append-only store of event envelopes. It implements
// events.Emitter so it can sit alongside the broadcasters.
//
// Sequence numbers restart with every process, so each Open starts a new
// run and events are only compared by Lamport timestamp within a run.
type Journal struct {
	db     *sql.DB
	run    int64
	logger *slog.Logger
}

var _ events.Emitter = (*Journal)(nil)

// Open creates or opens the journal at path. The schema is created if it
// doesn't exist and parent directories are created if needed.
func Open(path string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "journal")

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	// A single connection keeps :memory: databases shared and serializes
	// writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	j := &Journal{db: db, logger: logger}
	if err := j.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	if err := j.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	if err := j.startRun(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("event journal opened", "path", path, "run", j.run)
	return j, nil
}

func (j *Journal) createSchema() error {
	_, err := j.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			started_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run INTEGER NOT NULL DEFAULT 0,
			event TEXT NOT NULL,
			actor TEXT NOT NULL,
			participant INTEGER,
			seq INTEGER,
			timestamp TEXT NOT NULL,
			correlation_id TEXT,
			payload TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_events_correlation
			ON events(correlation_id);
	`)
	return err
}

// runMigrations brings journals created before runs were recorded up to
// date. Their events all land in run 0, ahead of any new run.
func (j *Journal) runMigrations() error {
	var exists int
	err := j.db.QueryRow(`SELECT 1 FROM pragma_table_info('events') WHERE name = 'run'`).Scan(&exists)
	if err != nil {
		if _, err := j.db.Exec(`ALTER TABLE events ADD COLUMN run INTEGER NOT NULL DEFAULT 0`); err != nil {
			return fmt.Errorf("adding run column to events: %w", err)
		}
		j.logger.Info("applied migration", "column", "run", "table", "events")
	}

	if _, err := j.db.Exec(`DROP INDEX IF EXISTS idx_events_lamport`); err != nil {
		return fmt.Errorf("dropping old lamport index: %w", err)
	}
	if _, err := j.db.Exec(`CREATE INDEX IF NOT EXISTS idx_events_run_lamport ON events(run, seq, participant)`); err != nil {
		return fmt.Errorf("creating lamport index: %w", err)
	}
	return nil
}

func (j *Journal) startRun() error {
	res, err := j.db.Exec(`INSERT INTO runs (started_at) VALUES (?)`, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("starting journal run: %w", err)
	}
	j.run, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading journal run id: %w", err)
	}
	return nil
}

// Run returns the id of the run events emitted through j are recorded under.
func (j *Journal) Run() int64 { return j.run }

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Emit appends env to the journal.
func (j *Journal) Emit(ctx context.Context, env events.Envelope) error {
	actor, err := json.Marshal(env.Actor)
	if err != nil {
		return fmt.Errorf("encoding actor: %w", err)
	}

	var participantRank, seq sql.NullInt64
	if env.Lamport != nil {
		participantRank = sql.NullInt64{Int64: int64(env.Lamport.Participant), Valid: true}
		seq = sql.NullInt64{Int64: int64(env.Lamport.Seq), Valid: true}
	}
	var correlation sql.NullString
	if env.CorrelationID != "" {
		correlation = sql.NullString{String: env.CorrelationID, Valid: true}
	}
	payload := string(env.Payload)
	if payload == "" {
		payload = "null"
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO events (run, event, actor, participant, seq, timestamp, correlation_id, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, j.run, env.Event, string(actor), participantRank, seq, env.Timestamp, correlation, payload)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}

	j.logger.Debug("journaled event", "event", env.Event, "correlation_id", env.CorrelationID)
	return nil
}

// ListParams filters List. Zero values match everything.
type ListParams struct {
	Event         string // exact event name, or a "collection:" style prefix
	CorrelationID string
	Limit         int // defaults to DefaultLimit
}

// List returns journaled envelopes run by run. Within a run they are in
// Lamport order: by sequence number, then participant rank, then insertion
// order, with unstamped events last.
func (j *Journal) List(ctx context.Context, p ListParams) ([]events.Envelope, error) {
	var (
		where []string
		args  []any
	)
	if p.Event != "" {
		if strings.HasSuffix(p.Event, ":") {
			where = append(where, "event LIKE ?")
			args = append(args, p.Event+"%")
		} else {
			where = append(where, "event = ?")
			args = append(args, p.Event)
		}
	}
	if p.CorrelationID != "" {
		where = append(where, "correlation_id = ?")
		args = append(args, p.CorrelationID)
	}
	limit := p.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	query := "SELECT event, actor, participant, seq, timestamp, correlation_id, payload FROM events"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY run, seq IS NULL, seq, participant, id LIMIT ?"
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var out []events.Envelope
	for rows.Next() {
		var (
			env             events.Envelope
			actor, payload  string
			participantRank sql.NullInt64
			seq             sql.NullInt64
			correlation     sql.NullString
		)
		if err := rows.Scan(&env.Event, &actor, &participantRank, &seq, &env.Timestamp, &correlation, &payload); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		if err := json.Unmarshal([]byte(actor), &env.Actor); err != nil {
			return nil, fmt.Errorf("decoding actor: %w", err)
		}
		if seq.Valid {
			env.Lamport = &participant.LamportTimestamp{
				Participant: participant.ID(participantRank.Int64),
				Seq:         uint64(seq.Int64),
			}
		}
		env.CorrelationID = correlation.String
		env.Payload = json.RawMessage(payload)
		out = append(out, env)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}
	return out, nil
}

// Count returns the number of journaled events.
func (j *Journal) Count(ctx context.Context) (int, error) {
	var n int
	if err := j.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting events: %w", err)
	}
	return n, nil
}
