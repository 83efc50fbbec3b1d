package state

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/satonomics-go/utxo-indexer/internal/cohort"
)

// snapshotMagic and snapshotVersion tag every container blob so a format
// change fails loudly instead of decoding garbage.
var snapshotMagic = [4]byte{'U', 'X', 'S', '1'}

const snapshotVersion = 1

// containerNames are the six C2 containers, each checkpointed as its own
// opaque blob keyed by name.
var containerNames = []string{
	"address_index_to_live",
	"tx_index_to_tx",
	"txout_index_to_sats",
	"txout_index_to_address",
	"date_index_to_blocks",
	"date_index_to_date",
}

type snapshotHeader struct {
	Magic   [4]byte
	Version uint32
}

func writeBlob(path string, payload interface{}) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(payload); err != nil {
		return fmt.Errorf("state: encode %s: %w", path, err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("state: create %s: %w", tmp, err)
	}
	header := snapshotHeader{Magic: snapshotMagic, Version: snapshotVersion}
	if err := gob.NewEncoder(f).Encode(header); err != nil {
		f.Close()
		return fmt.Errorf("state: write header %s: %w", path, err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return fmt.Errorf("state: write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readBlob(path string, out interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := gob.NewDecoder(f)
	var header snapshotHeader
	if err := dec.Decode(&header); err != nil {
		return fmt.Errorf("state: decode header %s: %w", path, err)
	}
	if header.Magic != snapshotMagic || header.Version != snapshotVersion {
		return fmt.Errorf("state: %s has incompatible snapshot header %+v", path, header)
	}
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("state: decode %s: %w", path, err)
	}
	return nil
}

// Save writes every container to dir as an opaque binary blob. Each
// container is a separate atomically-renamed file so a crash mid-save
// never leaves a half-written file mistaken for a complete one.
func (s *State) Save(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("state: create snapshot dir: %w", err)
	}
	blobs := map[string]interface{}{
		"address_index_to_live":  s.AddressIndexToLive,
		"tx_index_to_tx":         s.TxIndexToTx,
		"txout_index_to_sats":    s.TxoutIndexToSats,
		"txout_index_to_address": s.TxoutIndexToAddress,
		"date_index_to_blocks":   s.DateIndexToBlocks,
		"date_index_to_date":     s.DateIndexToDate,
	}
	for _, name := range containerNames {
		if err := writeBlob(filepath.Join(dir, name+".bin"), blobs[name]); err != nil {
			return err
		}
	}
	return nil
}

// Load restores State from dir. Loading is all-or-nothing: any single
// container failing to deserialize discards the whole attempt,
// and the caller must treat this the same as "no snapshot" (resume_height
// = 0, fresh State). BlockRecords round-trip their public fields only; the
// age-cohort scheduler bookkeeping is transient and the caller must
// re-register every loaded BlockRecord with a fresh cohort.AgeCohorts.
func Load(dir string) (*State, error) {
	s := New()

	var live map[uint32]*LiveAddressRecord
	if err := readBlob(filepath.Join(dir, "address_index_to_live.bin"), &live); err != nil {
		return nil, err
	}
	var txs map[uint32]*TxRecord
	if err := readBlob(filepath.Join(dir, "tx_index_to_tx.bin"), &txs); err != nil {
		return nil, err
	}
	var sats map[TxoutIndex]uint64
	if err := readBlob(filepath.Join(dir, "txout_index_to_sats.bin"), &sats); err != nil {
		return nil, err
	}
	var addrs map[TxoutIndex]uint32
	if err := readBlob(filepath.Join(dir, "txout_index_to_address.bin"), &addrs); err != nil {
		return nil, err
	}
	var dates [][]*cohort.BlockRecord
	if err := readBlob(filepath.Join(dir, "date_index_to_blocks.bin"), &dates); err != nil {
		return nil, err
	}
	var dateUnix []int64
	if err := readBlob(filepath.Join(dir, "date_index_to_date.bin"), &dateUnix); err != nil {
		return nil, err
	}

	s.AddressIndexToLive = live
	s.TxIndexToTx = txs
	s.TxoutIndexToSats = sats
	s.TxoutIndexToAddress = addrs
	s.DateIndexToBlocks = dates
	s.DateIndexToDate = dateUnix

	if err := s.AssertInvariants(); err != nil {
		return nil, fmt.Errorf("state: loaded snapshot failed invariant check: %w", err)
	}
	return s, nil
}
