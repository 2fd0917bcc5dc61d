package relayserver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
)

const (
	postgresJournalTable     = "studysync_events"
	postgresJournalTimeout   = 5 * time.Second
	postgresJournalMaxReplay = 1000
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

type PostgresJournal struct {
	dsn       string
	tableName string
	maxReplay int
	openDB    sqlOpenFunc

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

func NewPostgresJournal(dsn string) (*PostgresJournal, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	return &PostgresJournal{
		dsn:       dsn,
		tableName: postgresJournalTable,
		maxReplay: postgresJournalMaxReplay,
		openDB:    sql.Open,
	}, nil
}

func (j *PostgresJournal) Append(scope string, event map[string]any) error {
	if err := j.ensureReady(); err != nil {
		return err
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), postgresJournalTimeout)
	defer cancel()
	_, err = j.db.ExecContext(ctx,
		"INSERT INTO "+j.tableName+" (scope, payload) VALUES ($1, $2)",
		scope, string(payload))
	return err
}

func (j *PostgresJournal) Replay(scope string) ([]map[string]any, error) {
	if err := j.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), postgresJournalTimeout)
	defer cancel()
	rows, err := j.db.QueryContext(ctx,
		"SELECT payload FROM "+j.tableName+" WHERE scope = $1 ORDER BY id ASC LIMIT $2",
		scope, j.maxReplay)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []map[string]any{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var event map[string]any
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			continue
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func (j *PostgresJournal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

func (j *PostgresJournal) ensureReady() error {
	j.initOnce.Do(func() {
		db, err := j.openDB("postgres", j.dsn)
		if err != nil {
			j.initErr = err
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), postgresJournalTimeout)
		defer cancel()
		_, err = db.ExecContext(ctx, `
			CREATE TABLE IF NOT EXISTS `+j.tableName+` (
				id BIGSERIAL PRIMARY KEY,
				scope TEXT NOT NULL,
				payload TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`)
		if err != nil {
			_ = db.Close()
			j.initErr = err
			return
		}
		_, err = db.ExecContext(ctx,
			"CREATE INDEX IF NOT EXISTS "+j.tableName+"_scope_idx ON "+j.tableName+" (scope, id)")
		if err != nil {
			_ = db.Close()
			j.initErr = err
			return
		}
		j.db = db
	})
	return j.initErr
}
