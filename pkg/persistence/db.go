package persistence

import (
	"context"
	stdsql "database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx driver for database/sql

	"github.com/fugue-ai/rhema-coordinator/pkg/coordinationerr"
	"github.com/fugue-ai/rhema-coordinator/pkg/models"
)

//go:embed migrations
var migrationsFS embed.FS

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// OpTimeout bounds each gateway call against the database.
	OpTimeout time.Duration
}

// DB is the PostgreSQL-backed Gateway. Migrations are embedded into the
// binary and applied on startup, so production deployments never depend on
// external migration files.
type DB struct {
	db        *stdsql.DB
	opTimeout time.Duration
}

// NewDB opens a pooled connection, pings it, and applies pending migrations.
func NewDB(ctx context.Context, cfg DBConfig) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := stdsql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(db, cfg.Database); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	opTimeout := cfg.OpTimeout
	if opTimeout <= 0 {
		opTimeout = 5 * time.Second
	}
	return &DB{db: db, opTimeout: opTimeout}, nil
}

// runMigrations applies all pending migrations from the embedded FS using
// golang-migrate. ErrNoChange (schema already current) is not an error.
func runMigrations(db *stdsql.DB, database string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, database, driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// opCtx bounds each database call; see KV.opCtx for why the gateway owns
// its own deadline.
func (d *DB) opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), d.opTimeout)
}

func (d *DB) LoadState(nodeID string) (*models.ConsensusState, bool, error) {
	ctx, cancel := d.opCtx()
	defer cancel()
	var state models.ConsensusState
	var role string
	err := d.db.QueryRowContext(ctx,
		`SELECT node_id, term, role, leader_id, voted_for, commit_index, last_applied
		 FROM consensus_state WHERE node_id = $1`, nodeID,
	).Scan(&state.NodeID, &state.Term, &role, &state.LeaderID, &state.VotedFor,
		&state.CommitIndex, &state.LastApplied)
	if errors.Is(err, stdsql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, coordinationerr.Newf(component, "LoadState", coordinationerr.KindUnavailable, nodeID, err)
	}
	state.Role = models.ConsensusRole(role)
	return &state, true, nil
}

func (d *DB) SaveState(nodeID string, state models.ConsensusState) error {
	ctx, cancel := d.opCtx()
	defer cancel()
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO consensus_state
		   (node_id, term, role, leader_id, voted_for, commit_index, last_applied, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		 ON CONFLICT (node_id) DO UPDATE SET
		   term = EXCLUDED.term, role = EXCLUDED.role, leader_id = EXCLUDED.leader_id,
		   voted_for = EXCLUDED.voted_for, commit_index = EXCLUDED.commit_index,
		   last_applied = EXCLUDED.last_applied, updated_at = now()`,
		nodeID, state.Term, string(state.Role), state.LeaderID, state.VotedFor,
		state.CommitIndex, state.LastApplied)
	if err != nil {
		return coordinationerr.Newf(component, "SaveState", coordinationerr.KindUnavailable, nodeID, err)
	}
	return nil
}

func (d *DB) AppendLog(nodeID string, entry models.ConsensusEntry) error {
	ctx, cancel := d.opCtx()
	defer cancel()
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO consensus_log (node_id, idx, term, payload) VALUES ($1, $2, $3, $4)`,
		nodeID, entry.Index, entry.Term, entry.Payload)
	if err != nil {
		return coordinationerr.Newf(component, "AppendLog", coordinationerr.KindUnavailable, nodeID, err)
	}
	return nil
}

func (d *DB) Log(nodeID string) ([]models.ConsensusEntry, error) {
	ctx, cancel := d.opCtx()
	defer cancel()
	rows, err := d.db.QueryContext(ctx,
		`SELECT idx, term, payload, committed_at, applied_at
		 FROM consensus_log WHERE node_id = $1 ORDER BY idx`, nodeID)
	if err != nil {
		return nil, coordinationerr.Newf(component, "Log", coordinationerr.KindUnavailable, nodeID, err)
	}
	defer rows.Close()

	var log []models.ConsensusEntry
	for rows.Next() {
		var entry models.ConsensusEntry
		var committedAt, appliedAt stdsql.NullTime
		if err := rows.Scan(&entry.Index, &entry.Term, &entry.Payload, &committedAt, &appliedAt); err != nil {
			return nil, coordinationerr.Newf(component, "Log", coordinationerr.KindUnavailable, nodeID, err)
		}
		if committedAt.Valid {
			entry.CommittedAt = committedAt.Time
		}
		if appliedAt.Valid {
			entry.AppliedAt = appliedAt.Time
		}
		log = append(log, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, coordinationerr.Newf(component, "Log", coordinationerr.KindUnavailable, nodeID, err)
	}
	return log, nil
}

func (d *DB) MarkCommitted(nodeID string, index int, at time.Time) error {
	ctx, cancel := d.opCtx()
	defer cancel()
	_, err := d.db.ExecContext(ctx,
		`UPDATE consensus_log SET committed_at = $3
		 WHERE node_id = $1 AND idx <= $2 AND committed_at IS NULL`,
		nodeID, index, at)
	if err != nil {
		return coordinationerr.Newf(component, "MarkCommitted", coordinationerr.KindUnavailable, nodeID, err)
	}
	return nil
}

func (d *DB) MarkApplied(nodeID string, index int, at time.Time) error {
	ctx, cancel := d.opCtx()
	defer cancel()
	_, err := d.db.ExecContext(ctx,
		`UPDATE consensus_log SET applied_at = $3
		 WHERE node_id = $1 AND idx <= $2 AND applied_at IS NULL`,
		nodeID, index, at)
	if err != nil {
		return coordinationerr.Newf(component, "MarkApplied", coordinationerr.KindUnavailable, nodeID, err)
	}
	return nil
}

func (d *DB) Snapshot() (*SnapshotData, error) {
	ctx, cancel := d.opCtx()
	defer cancel()
	snap := &SnapshotData{
		TakenAt: time.Now().UTC(),
		States:  make(map[string]models.ConsensusState),
		Logs:    make(map[string][]models.ConsensusEntry),
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT node_id, term, role, leader_id, voted_for, commit_index, last_applied
		 FROM consensus_state`)
	if err != nil {
		return nil, coordinationerr.Newf(component, "Snapshot", coordinationerr.KindUnavailable, "", err)
	}
	defer rows.Close()
	for rows.Next() {
		var state models.ConsensusState
		var role string
		if err := rows.Scan(&state.NodeID, &state.Term, &role, &state.LeaderID,
			&state.VotedFor, &state.CommitIndex, &state.LastApplied); err != nil {
			return nil, coordinationerr.Newf(component, "Snapshot", coordinationerr.KindUnavailable, "", err)
		}
		state.Role = models.ConsensusRole(role)
		snap.States[state.NodeID] = state
	}
	if err := rows.Err(); err != nil {
		return nil, coordinationerr.Newf(component, "Snapshot", coordinationerr.KindUnavailable, "", err)
	}

	for nodeID := range snap.States {
		log, err := d.Log(nodeID)
		if err != nil {
			return nil, err
		}
		if len(log) > 0 {
			snap.Logs[nodeID] = log
		}
	}
	return snap, nil
}

func (d *DB) Close() error { return d.db.Close() }
