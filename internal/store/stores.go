package store

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/satonomics-go/utxo-indexer/internal/rawaddress"
)

// TxidStore maps a transaction id to the tx_index assigned on first sight.
// Partitioned by the first byte of the txid into 256
// shards; the remaining 31 bytes (a dedup prefix — collisions within a
// shard are vanishingly unlikely and are resolved by full-key equality on
// the pebble key anyway) are the per-shard key.
type TxidStore struct {
	shards    *shardSet
	dir       string
	nextIndex atomic.Uint32
}

const txidShardCount = 256

func NewTxidStore(dataDir string) (*TxidStore, error) {
	dir := filepath.Join(dataDir, "txid_to_tx_index")
	ss, err := openShardSet(dir, txidShardCount)
	if err != nil {
		return nil, err
	}
	n, err := loadNextIndex(dir)
	if err != nil {
		return nil, err
	}
	s := &TxidStore{shards: ss, dir: dir}
	s.nextIndex.Store(n)
	return s, nil
}

// Allocate returns the next monotonic tx_index, assigned in block-then-
// transaction order on first sight. Called by the driver thread only,
// during the sequential tx loop.
func (s *TxidStore) Allocate() uint32 {
	return s.nextIndex.Add(1) - 1
}

func txidShard(txid [32]byte) (int, []byte) {
	return int(txid[0]), txid[1:]
}

func (s *TxidStore) OpenShard(txid [32]byte) error {
	shard, _ := txidShard(txid)
	return s.shards.openShard(shard)
}

func (s *TxidStore) Get(txid [32]byte) (uint32, bool, error) {
	shard, key := txidShard(txid)
	v, err := s.shards.get(shard, key)
	if err == ErrNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return binary.BigEndian.Uint32(v), true, nil
}

func (s *TxidStore) GetPending(txid [32]byte) (uint32, bool) {
	shard, key := txidShard(txid)
	v, ok := s.shards.getPending(shard, key)
	if !ok {
		return 0, false
	}
	return binary.BigEndian.Uint32(v), true
}

func (s *TxidStore) Insert(txid [32]byte, txIndex uint32) (uint32, bool) {
	shard, key := txidShard(txid)
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], txIndex)
	prev := s.shards.insert(shard, key, buf[:])
	if prev == nil {
		return 0, false
	}
	return binary.BigEndian.Uint32(prev), true
}

func (s *TxidStore) RemovePending(txid [32]byte) (uint32, bool) {
	shard, key := txidShard(txid)
	v, ok := s.shards.removePending(shard, key)
	if !ok {
		return 0, false
	}
	return binary.BigEndian.Uint32(v), true
}

func (s *TxidStore) Remove(txid [32]byte) {
	shard, key := txidShard(txid)
	s.shards.remove(shard, key)
}

func (s *TxidStore) Flush() error {
	if err := s.shards.flush(); err != nil {
		return err
	}
	return saveNextIndex(s.dir, s.nextIndex.Load())
}
func (s *TxidStore) Close() error { return s.shards.Close() }

// RestoreNextIndex seeds the allocator directly, for callers (tests, a
// from-scratch bulk import) that build state without going through the
// constructor's own next_index.bin load.
func (s *TxidStore) RestoreNextIndex(n uint32) { s.nextIndex.Store(n) }

// AddressStore maps a RawAddress to the address_index assigned on first
// sight, and owns the monotonic address_index allocator. Fixed-length
// kinds are partitioned by a 2-byte prefix of their hash (folded into
// shardCount buckets via xxhash); Multisig/Unknown addresses share a
// single overflow shard, since they have no fixed-width prefix to bucket
// on.
type AddressStore struct {
	shards       *shardSet
	dir          string
	overflowShard int
	nextIndex    atomic.Uint32
	mu           sync.Mutex
}

func NewAddressStore(dataDir string, shardCount int) (*AddressStore, error) {
	// +1 for the multisig/unknown overflow shard.
	dir := filepath.Join(dataDir, "address_to_address_index")
	ss, err := openShardSet(dir, shardCount+1)
	if err != nil {
		return nil, err
	}
	n, err := loadNextIndex(dir)
	if err != nil {
		return nil, err
	}
	s := &AddressStore{shards: ss, dir: dir, overflowShard: shardCount}
	s.nextIndex.Store(n)
	return s, nil
}

func (s *AddressStore) shardFor(addr rawaddress.RawAddress) int {
	if !addr.Kind.FixedLength() {
		return s.overflowShard
	}
	prefix := uint64(addr.Hash[0])<<8 | uint64(addr.Hash[1])
	return int(xxhash.Sum64(binary.BigEndian.AppendUint64(nil, prefix)) % uint64(s.overflowShard))
}

func (s *AddressStore) OpenShard(addr rawaddress.RawAddress) error {
	return s.shards.openShard(s.shardFor(addr))
}

func (s *AddressStore) Get(addr rawaddress.RawAddress) (uint32, bool, error) {
	shard := s.shardFor(addr)
	v, err := s.shards.get(shard, addr.Key())
	if err == ErrNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return binary.BigEndian.Uint32(v), true, nil
}

func (s *AddressStore) GetPending(addr rawaddress.RawAddress) (uint32, bool) {
	shard := s.shardFor(addr)
	v, ok := s.shards.getPending(shard, addr.Key())
	if !ok {
		return 0, false
	}
	return binary.BigEndian.Uint32(v), true
}

// Allocate returns the next monotonic address_index. It is called by the
// driver thread only, during the sequential tx loop.
func (s *AddressStore) Allocate() uint32 {
	return s.nextIndex.Add(1) - 1
}

func (s *AddressStore) Insert(addr rawaddress.RawAddress, index uint32) {
	shard := s.shardFor(addr)
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], index)
	s.shards.insert(shard, addr.Key(), buf[:])
}

func (s *AddressStore) Flush() error {
	if err := s.shards.flush(); err != nil {
		return err
	}
	return saveNextIndex(s.dir, s.nextIndex.Load())
}
func (s *AddressStore) Close() error { return s.shards.Close() }

// RestoreNextIndex seeds the allocator directly, for callers (tests, a
// from-scratch bulk import) that build state without going through the
// constructor's own next_index.bin load.
func (s *AddressStore) RestoreNextIndex(n uint32) { s.nextIndex.Store(n) }

// ArchivedAddressRecord is an address currently holding a zero balance:
// only the address kind (to reconstruct a RawAddress if it ever receives
// again) and the lifetime total transferred through it.
type ArchivedAddressRecord struct {
	Kind             rawaddress.Kind
	TotalTransferred uint64
}

func encodeArchived(r ArchivedAddressRecord) []byte {
	buf := make([]byte, 9)
	buf[0] = byte(r.Kind)
	binary.BigEndian.PutUint64(buf[1:], r.TotalTransferred)
	return buf
}

func decodeArchived(b []byte) (ArchivedAddressRecord, error) {
	if len(b) != 9 {
		return ArchivedAddressRecord{}, fmt.Errorf("store: malformed archived record (%d bytes)", len(b))
	}
	return ArchivedAddressRecord{
		Kind:             rawaddress.Kind(b[0]),
		TotalTransferred: binary.BigEndian.Uint64(b[1:]),
	}, nil
}

// ArchivedStore maps address_index -> ArchivedAddressRecord, partitioned by
// address_index/1_000_000.
type ArchivedStore struct {
	shards *shardSet
}

const archivedBucketSize = 1_000_000

func NewArchivedStore(dataDir string, shardCount int) (*ArchivedStore, error) {
	ss, err := openShardSet(filepath.Join(dataDir, "address_index_to_archived"), shardCount)
	if err != nil {
		return nil, err
	}
	return &ArchivedStore{shards: ss}, nil
}

func (s *ArchivedStore) shardFor(index uint32) int {
	return int((index / archivedBucketSize) % uint32(len(s.shards.shards)))
}

func keyFor(index uint32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], index)
	return buf[:]
}

func (s *ArchivedStore) OpenShard(index uint32) error {
	return s.shards.openShard(s.shardFor(index))
}

func (s *ArchivedStore) Get(index uint32) (ArchivedAddressRecord, bool, error) {
	shard := s.shardFor(index)
	v, err := s.shards.get(shard, keyFor(index))
	if err == ErrNotFound {
		return ArchivedAddressRecord{}, false, nil
	}
	if err != nil {
		return ArchivedAddressRecord{}, false, err
	}
	rec, err := decodeArchived(v)
	return rec, err == nil, err
}

func (s *ArchivedStore) GetPending(index uint32) (ArchivedAddressRecord, bool) {
	shard := s.shardFor(index)
	v, ok := s.shards.getPending(shard, keyFor(index))
	if !ok {
		return ArchivedAddressRecord{}, false
	}
	rec, err := decodeArchived(v)
	return rec, err == nil
}

func (s *ArchivedStore) Insert(index uint32, rec ArchivedAddressRecord) {
	shard := s.shardFor(index)
	s.shards.insert(shard, keyFor(index), encodeArchived(rec))
}

func (s *ArchivedStore) RemovePending(index uint32) (ArchivedAddressRecord, bool) {
	shard := s.shardFor(index)
	v, ok := s.shards.removePending(shard, keyFor(index))
	if !ok {
		return ArchivedAddressRecord{}, false
	}
	rec, err := decodeArchived(v)
	return rec, err == nil
}

func (s *ArchivedStore) Remove(index uint32) {
	shard := s.shardFor(index)
	s.shards.remove(shard, keyFor(index))
}

func (s *ArchivedStore) Flush() error { return s.shards.flush() }
func (s *ArchivedStore) Close() error { return s.shards.Close() }
