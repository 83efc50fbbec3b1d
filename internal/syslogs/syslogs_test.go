package syslogs

import (
	"path/filepath"
	"testing"
)

func TestOpenCreatesTablesAndInsertsRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "syslogs.db")
	if err := Open(dbPath); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer Close()

	if err := InsertIndexerLog(IndexerLog{
		FirstHeight: 100, LastHeight: 199, TxCount: 50, AddressCount: 10,
		NewAddressNum: 3, CompletionTime: 1700000000, ElapsedMillis: 250,
	}); err != nil {
		t.Fatalf("insert indexer log: %v", err)
	}

	if err := InsertErrLog(ErrLog{
		ErrType: "fatal", Height: 150, Timestamp: 1700000001, ErrorMessage: "boom",
	}); err != nil {
		t.Fatalf("insert err log: %v", err)
	}

	if err := InsertResetLog(ResetLog{
		FromHeight: 90, Reason: "reorg past safety horizon", Timestamp: 1700000002,
	}); err != nil {
		t.Fatalf("insert reset log: %v", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM IndexerLog").Scan(&count); err != nil {
		t.Fatalf("count indexer log: %v", err)
	}
	if count != 1 {
		t.Fatalf("IndexerLog row count = %d, want 1", count)
	}

	var lastHeight int
	if err := db.QueryRow("SELECT LastHeight FROM IndexerLog WHERE ID = 1").Scan(&lastHeight); err != nil {
		t.Fatalf("select last height: %v", err)
	}
	if lastHeight != 199 {
		t.Fatalf("LastHeight = %d, want 199", lastHeight)
	}
}

func TestCloseIsSafeWithoutOpen(t *testing.T) {
	db = nil
	if err := Close(); err != nil {
		t.Fatalf("close with nil db: %v", err)
	}
}
