// Package eventdb persists every event to a per-run SQLite database.
// Range queries for post-hoc replay live in internal/eventsource.
//
// Schema is the five tables from spec.md §4.6.1. One DB transaction
// covers one EventLogger drain pass, so no transaction outlives a
// pass. The insert statements are prepared afresh at the start of
// each transaction; they are not carried over from one transaction to
// the next.
package eventdb

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/adred-codev/pubsubbench/internal/event"
	"github.com/adred-codev/pubsubbench/internal/sink"
)

var _ sink.EventSink = (*Sink)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS publishers (
	id TEXT PRIMARY KEY,
	msg_type TEXT NOT NULL,
	topic TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS subscribers (
	id TEXT PRIMARY KEY,
	msg_type TEXT NOT NULL,
	topic TEXT NOT NULL,
	data_size INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS messages_sent (
	pub_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	ts INTEGER NOT NULL,
	PRIMARY KEY (pub_id, seq)
);
CREATE TABLE IF NOT EXISTS messages_received (
	sub_id TEXT NOT NULL,
	pub_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	ts INTEGER NOT NULL,
	PRIMARY KEY (sub_id, pub_id, seq)
);
CREATE TABLE IF NOT EXISTS system_metrics (
	cpu_usage REAL NOT NULL,
	ru_utime INTEGER NOT NULL,
	ru_stime INTEGER NOT NULL,
	ru_maxrss INTEGER NOT NULL,
	ts INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sent_ts ON messages_sent(ts);
CREATE INDEX IF NOT EXISTS idx_received_ts ON messages_received(ts);
CREATE INDEX IF NOT EXISTS idx_system_ts ON system_metrics(ts);
`

// Sink is an EventSink backed by a SQLite file. A new file is created
// per run, named "<uuid>.db" by the caller (cmd/pubsubbench does so
// when PSB_EVENT_DB_PATH is unset; see Open).
type Sink struct {
	db *sql.DB
	tx *sql.Tx

	insertPub  *sql.Stmt
	insertSub  *sql.Stmt
	insertSent *sql.Stmt
	insertRecv *sql.Stmt
	insertSysM *sql.Stmt
}

// Open opens the SQLite file at path, creating it if absent, and
// creates any missing schema tables. An existing file is not
// truncated: its tables and rows are kept.
func Open(path string) (*Sink, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("eventdb: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // sqlite3 driver is not safe for concurrent writers

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("eventdb: create schema: %w", err)
	}

	return &Sink{db: db}, nil
}

// Close releases the underlying database handle. Any in-flight
// transaction is rolled back.
func (s *Sink) Close() error {
	if s.tx != nil {
		_ = s.tx.Rollback()
		s.tx = nil
	}
	return s.db.Close()
}

// BeginTransaction opens one DB transaction and prepares its
// statements, covering exactly one EventLogger drain pass.
func (s *Sink) BeginTransaction() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("eventdb: begin: %w", err)
	}
	s.tx = tx

	stmts := []struct {
		dst **sql.Stmt
		sql string
	}{
		{&s.insertPub, `INSERT OR REPLACE INTO publishers(id, msg_type, topic) VALUES (?, ?, ?)`},
		{&s.insertSub, `INSERT OR REPLACE INTO subscribers(id, msg_type, topic, data_size) VALUES (?, ?, ?, ?)`},
		{&s.insertSent, `INSERT OR REPLACE INTO messages_sent(pub_id, seq, ts) VALUES (?, ?, ?)`},
		{&s.insertRecv, `INSERT OR REPLACE INTO messages_received(sub_id, pub_id, seq, ts) VALUES (?, ?, ?, ?)`},
		{&s.insertSysM, `INSERT INTO system_metrics(cpu_usage, ru_utime, ru_stime, ru_maxrss, ts) VALUES (?, ?, ?, ?, ?)`},
	}
	for _, st := range stmts {
		prepared, err := tx.Prepare(st.sql)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("eventdb: prepare: %w", err)
		}
		*st.dst = prepared
	}
	return nil
}

// EndTransaction commits the transaction opened by BeginTransaction.
func (s *Sink) EndTransaction() error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("eventdb: commit: %w", err)
	}
	return nil
}

func (s *Sink) RecordRegisterPub(e event.Event) error {
	_, err := s.insertPub.Exec(string(e.PubId), e.MsgType, e.Topic)
	return err
}

func (s *Sink) RecordRegisterSub(e event.Event) error {
	_, err := s.insertSub.Exec(string(e.SubId), e.MsgType, e.Topic, e.DataSize)
	return err
}

func (s *Sink) RecordMessageSent(e event.Event) error {
	_, err := s.insertSent.Exec(string(e.PubId), uint64(e.SequenceId), e.Timestamp)
	return err
}

func (s *Sink) RecordMessageReceived(e event.Event) error {
	_, err := s.insertRecv.Exec(string(e.SubId), string(e.PubId), uint64(e.SequenceId), e.Timestamp)
	return err
}

func (s *Sink) RecordSystemMeasured(e event.Event) error {
	_, err := s.insertSysM.Exec(e.CPU.UsagePercent, e.RUsage.UTimeNs, e.RUsage.STimeNs, e.RUsage.MaxRSSKB, e.Timestamp)
	return err
}
