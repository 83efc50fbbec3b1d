package store

import (
	"testing"

	"github.com/satonomics-go/utxo-indexer/internal/rawaddress"
)

func txidOf(b byte) [32]byte {
	var t [32]byte
	t[0] = b
	t[31] = 0xAB
	return t
}

func TestTxidStoreAllocateInsertGet(t *testing.T) {
	dir := t.TempDir()
	s, err := NewTxidStore(dir)
	if err != nil {
		t.Fatalf("new txid store: %v", err)
	}
	defer s.Close()

	txid := txidOf(1)
	if err := s.OpenShard(txid); err != nil {
		t.Fatalf("open shard: %v", err)
	}

	idx := s.Allocate()
	if idx != 0 {
		t.Fatalf("first Allocate() = %d, want 0", idx)
	}
	s.Insert(txid, idx)

	got, ok := s.GetPending(txid)
	if !ok || got != 0 {
		t.Fatalf("GetPending = %d, %v; want 0, true", got, ok)
	}

	if err := s.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	got, ok, err := s.Get(txid)
	if err != nil || !ok || got != 0 {
		t.Fatalf("Get after flush = %d, %v, %v; want 0, true, nil", got, ok, err)
	}
}

func TestTxidStoreAllocatorPersistsAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	s1, err := NewTxidStore(dir)
	if err != nil {
		t.Fatalf("new txid store: %v", err)
	}

	for i := 0; i < 5; i++ {
		s1.Allocate()
	}
	if err := s1.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2, err := NewTxidStore(dir)
	if err != nil {
		t.Fatalf("reopen txid store: %v", err)
	}
	defer s2.Close()

	next := s2.Allocate()
	if next != 5 {
		t.Fatalf("Allocate() after restart = %d, want 5 (allocator must survive the restart)", next)
	}
}

func TestAddressStoreShardForRoutesFixedAndOverflow(t *testing.T) {
	dir := t.TempDir()
	s, err := NewAddressStore(dir, 4)
	if err != nil {
		t.Fatalf("new address store: %v", err)
	}
	defer s.Close()

	fixed := rawaddress.RawAddress{Kind: rawaddress.KindP2WPKH, Hash: make([]byte, 20)}
	if got := s.shardFor(fixed); got < 0 || got >= 4 {
		t.Fatalf("shardFor(fixed) = %d, want in [0,4)", got)
	}

	overflow := rawaddress.RawAddress{Kind: rawaddress.KindMultisig, Hash: []byte{1, 2, 3}}
	if got := s.shardFor(overflow); got != 4 {
		t.Fatalf("shardFor(multisig) = %d, want the overflow shard 4", got)
	}
}

func TestAddressStoreInsertAndGet(t *testing.T) {
	dir := t.TempDir()
	s, err := NewAddressStore(dir, 4)
	if err != nil {
		t.Fatalf("new address store: %v", err)
	}
	defer s.Close()

	addr := rawaddress.RawAddress{Kind: rawaddress.KindP2TR, Hash: make([]byte, 32)}
	if err := s.OpenShard(addr); err != nil {
		t.Fatalf("open shard: %v", err)
	}

	idx := s.Allocate()
	s.Insert(addr, idx)
	if err := s.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	got, ok, err := s.Get(addr)
	if err != nil || !ok || got != idx {
		t.Fatalf("Get = %d, %v, %v; want %d, true, nil", got, ok, err, idx)
	}
}

func TestAddressStoreAllocatorPersistsAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	s1, err := NewAddressStore(dir, 4)
	if err != nil {
		t.Fatalf("new address store: %v", err)
	}
	for i := 0; i < 3; i++ {
		s1.Allocate()
	}
	if err := s1.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2, err := NewAddressStore(dir, 4)
	if err != nil {
		t.Fatalf("reopen address store: %v", err)
	}
	defer s2.Close()

	next := s2.Allocate()
	if next != 3 {
		t.Fatalf("Allocate() after restart = %d, want 3", next)
	}
}

func TestArchivedStoreInsertGetRemove(t *testing.T) {
	dir := t.TempDir()
	s, err := NewArchivedStore(dir, 4)
	if err != nil {
		t.Fatalf("new archived store: %v", err)
	}
	defer s.Close()

	rec := ArchivedAddressRecord{Kind: rawaddress.KindP2PKH, TotalTransferred: 12345}
	if err := s.OpenShard(100); err != nil {
		t.Fatalf("open shard: %v", err)
	}
	s.Insert(100, rec)
	if err := s.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	got, ok, err := s.Get(100)
	if err != nil || !ok || got != rec {
		t.Fatalf("Get(100) = %+v, %v, %v; want %+v, true, nil", got, ok, err, rec)
	}

	s.Remove(100)
	if err := s.Flush(); err != nil {
		t.Fatalf("flush after remove: %v", err)
	}
	if _, ok, _ := s.Get(100); ok {
		t.Fatal("Get(100) should report not found after removal")
	}
}
