// Package syslogs is the run/error/reset audit trail: a sqlite3-backed set
// of tables recording what the driver did, one row per event, queried by
// operators rather than by the indexing core itself.
package syslogs

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// IndexerLog is one checkpoint summary: the height range just
// checkpointed, how much it touched, and how long it took.
type IndexerLog struct {
	FirstHeight    int   `json:"first_height"`
	LastHeight     int   `json:"last_height"`
	TxCount        int64 `json:"tx_count"`
	AddressCount   int64 `json:"address_count"`
	NewAddressNum  int64 `json:"new_address_count"`
	CompletionTime int64 `json:"completion_time"`
	ElapsedMillis  int64 `json:"elapsed_millis"`
}

// ErrLog is one fatal or recoverable-skip diagnostic.
type ErrLog struct {
	ErrType      string `json:"err_type"`
	Height       int    `json:"height"`
	Timestamp    int64  `json:"timestamp"`
	ErrorMessage string `json:"error_message"`
}

// ResetLog records a safety-horizon-triggered C2 reset: the one
// state-rewind event this design has, since this indexer never rewinds
// for a reorg below the safety horizon.
type ResetLog struct {
	FromHeight int    `json:"from_height"`
	Reason     string `json:"reason"`
	Timestamp  int64  `json:"timestamp"`
}

var db *sql.DB

// Open opens (creating if needed) the sqlite3 database at dbPath and
// ensures its tables exist.
func Open(dbPath string) error {
	var err error
	db, err = sql.Open("sqlite3", dbPath)
	if err != nil {
		return fmt.Errorf("syslogs: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return fmt.Errorf("syslogs: connect to database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("syslogs: set WAL mode: %w", err)
	}
	return createTables()
}

func createTables() error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS IndexerLog (
			ID INTEGER PRIMARY KEY AUTOINCREMENT,
			FirstHeight INTEGER,
			LastHeight INTEGER,
			TxCount INTEGER,
			AddressCount INTEGER,
			NewAddressNum INTEGER,
			CompletionTime INTEGER,
			ElapsedMillis INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS ErrLog (
			ID INTEGER PRIMARY KEY AUTOINCREMENT,
			ErrType TEXT,
			Height INTEGER,
			Timestamp INTEGER,
			ErrorMessage TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS ResetLog (
			ID INTEGER PRIMARY KEY AUTOINCREMENT,
			FromHeight INTEGER,
			Reason TEXT,
			Timestamp INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_indexerlog_lastheight ON IndexerLog(LastHeight)`,
	}
	for _, stmt := range tables {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("syslogs: create table: %w", err)
		}
	}
	return nil
}

func InsertIndexerLog(log IndexerLog) error {
	_, err := db.Exec(
		`INSERT INTO IndexerLog (FirstHeight, LastHeight, TxCount, AddressCount, NewAddressNum, CompletionTime, ElapsedMillis)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		log.FirstHeight, log.LastHeight, log.TxCount, log.AddressCount, log.NewAddressNum, log.CompletionTime, log.ElapsedMillis,
	)
	if err != nil {
		return fmt.Errorf("syslogs: insert IndexerLog: %w", err)
	}
	return nil
}

func InsertErrLog(log ErrLog) error {
	_, err := db.Exec(
		`INSERT INTO ErrLog (ErrType, Height, Timestamp, ErrorMessage) VALUES (?, ?, ?, ?)`,
		log.ErrType, log.Height, log.Timestamp, log.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("syslogs: insert ErrLog: %w", err)
	}
	return nil
}

func InsertResetLog(log ResetLog) error {
	_, err := db.Exec(
		`INSERT INTO ResetLog (FromHeight, Reason, Timestamp) VALUES (?, ?, ?)`,
		log.FromHeight, log.Reason, log.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("syslogs: insert ResetLog: %w", err)
	}
	return nil
}

func Close() error {
	if db == nil {
		return nil
	}
	return db.Close()
}
