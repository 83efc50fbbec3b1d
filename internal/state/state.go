// Package state implements the C2 live-state containers: per-run hot
// in-memory maps for addresses, transactions, and outputs, checkpointed as
// opaque binary snapshots.
package state

import (
	"fmt"

	"github.com/satonomics-go/utxo-indexer/internal/cohort"
	"github.com/satonomics-go/utxo-indexer/internal/rawaddress"
)

// LiveAddressRecord is a non-zero-balance address. amount == received -
// sent is enforced by Receive/Spend; callers never mutate the fields
// directly.
type LiveAddressRecord struct {
	Kind          rawaddress.Kind
	Amount        uint64
	Sent          uint64
	Received      uint64
	MeanPricePaid float64
	UTXOCount     uint32
}

// NewLiveAddressRecord starts a fresh record for a first-ever receive.
func NewLiveAddressRecord(kind rawaddress.Kind) *LiveAddressRecord {
	return &LiveAddressRecord{Kind: kind}
}

// Receive folds sats received at price into the running weighted-average
// cost basis, then updates amount/received/utxo_count.
func (a *LiveAddressRecord) Receive(sats uint64, price float64) {
	total := a.Amount + sats
	if total > 0 {
		a.MeanPricePaid = (a.MeanPricePaid*float64(a.Amount) + price*float64(sats)) / float64(total)
	}
	a.Amount = total
	a.Received += sats
	a.UTXOCount++
}

// Spend removes sats at the block price currentPrice, returning the
// realized profit/loss of this spend against the prior cost basis
// (positive = profit). mean_price_paid is left unchanged by a partial
// spend.
func (a *LiveAddressRecord) Spend(sats uint64, currentPrice float64) (float64, error) {
	if sats > a.Amount {
		return 0, fmt.Errorf("state: spend %d exceeds live amount %d", sats, a.Amount)
	}
	pnl := (currentPrice - a.MeanPricePaid) * float64(sats) / satsPerCoin
	a.Amount -= sats
	a.Sent += sats
	if a.UTXOCount > 0 {
		a.UTXOCount--
	}
	return pnl, nil
}

const satsPerCoin = 100_000_000

// BlockPath locates a BlockRecord: the date it was produced in, and its
// position within that date's block list.
type BlockPath struct {
	DateIndex            uint16
	BlockIndexWithinDate uint16
}

// TxRecord tracks a transaction that still has unspent outputs.
type TxRecord struct {
	BlockPath                BlockPath
	RemainingSpendableOutputs uint32
}

// TxoutIndex identifies one output.
type TxoutIndex struct {
	TxIndex uint32
	Vout    uint16
}

// State is the full C2 live-state bundle.
type State struct {
	AddressIndexToLive  map[uint32]*LiveAddressRecord
	TxIndexToTx         map[uint32]*TxRecord
	TxoutIndexToSats    map[TxoutIndex]uint64
	TxoutIndexToAddress map[TxoutIndex]uint32

	// DateIndexToBlocks[d] is the dense, append-only list of BlockRecords
	// produced on date d, in height order.
	DateIndexToBlocks [][]*cohort.BlockRecord

	// DateIndexToDate[d] is date d's UTC midnight, as a Unix timestamp.
	// Needed because date_index is dense over *dates that produced a
	// block*, not over calendar days — coindays-destroyed needs the actual
	// calendar gap, which date_index alone cannot give if a day were ever
	// skipped.
	DateIndexToDate []int64
}

func New() *State {
	return &State{
		AddressIndexToLive:  make(map[uint32]*LiveAddressRecord),
		TxIndexToTx:         make(map[uint32]*TxRecord),
		TxoutIndexToSats:    make(map[TxoutIndex]uint64),
		TxoutIndexToAddress: make(map[TxoutIndex]uint32),
		DateIndexToBlocks:   nil,
		DateIndexToDate:     nil,
	}
}

// PushDate appends a new, empty date entry for the UTC midnight unix
// timestamp dateUnix and returns its index. The block processor calls this
// when a block's date exceeds the last known date.
func (s *State) PushDate(dateUnix int64) uint16 {
	s.DateIndexToBlocks = append(s.DateIndexToBlocks, nil)
	s.DateIndexToDate = append(s.DateIndexToDate, dateUnix)
	return uint16(len(s.DateIndexToBlocks) - 1)
}

// DateAt returns the UTC midnight unix timestamp of dateIndex.
func (s *State) DateAt(dateIndex uint16) (int64, error) {
	if int(dateIndex) >= len(s.DateIndexToDate) {
		return 0, fmt.Errorf("state: date index %d out of range", dateIndex)
	}
	return s.DateIndexToDate[dateIndex], nil
}

func (s *State) LastDateIndex() (uint16, bool) {
	if len(s.DateIndexToBlocks) == 0 {
		return 0, false
	}
	return uint16(len(s.DateIndexToBlocks) - 1), true
}

// LastProcessedHeight returns the height of the most recently appended
// BlockRecord (blocks are always appended in increasing height order, so
// the last date's last block is always the overall last one), for the
// driver to decide where a resumed run picks back up.
func (s *State) LastProcessedHeight() (uint32, bool) {
	dateIndex, ok := s.LastDateIndex()
	if !ok {
		return 0, false
	}
	blocks := s.DateIndexToBlocks[dateIndex]
	if len(blocks) == 0 {
		return 0, false
	}
	return blocks[len(blocks)-1].Height, true
}

// LastProcessedTimestamp returns the timestamp of the most recently
// appended BlockRecord, the same record LastProcessedHeight resolves to.
func (s *State) LastProcessedTimestamp() (uint32, bool) {
	dateIndex, ok := s.LastDateIndex()
	if !ok {
		return 0, false
	}
	blocks := s.DateIndexToBlocks[dateIndex]
	if len(blocks) == 0 {
		return 0, false
	}
	return blocks[len(blocks)-1].Timestamp, true
}

// AppendBlockRecord appends rec to dateIndex's block list and returns the
// BlockPath at which it now lives.
func (s *State) AppendBlockRecord(dateIndex uint16, rec *cohort.BlockRecord) BlockPath {
	s.DateIndexToBlocks[dateIndex] = append(s.DateIndexToBlocks[dateIndex], rec)
	idx := uint16(len(s.DateIndexToBlocks[dateIndex]) - 1)
	return BlockPath{DateIndex: dateIndex, BlockIndexWithinDate: idx}
}

func (s *State) BlockRecordAt(path BlockPath) (*cohort.BlockRecord, error) {
	if int(path.DateIndex) >= len(s.DateIndexToBlocks) {
		return nil, fmt.Errorf("state: date index %d out of range", path.DateIndex)
	}
	blocks := s.DateIndexToBlocks[path.DateIndex]
	if int(path.BlockIndexWithinDate) >= len(blocks) {
		return nil, fmt.Errorf("state: block index %d out of range for date %d", path.BlockIndexWithinDate, path.DateIndex)
	}
	return blocks[path.BlockIndexWithinDate], nil
}

// AssertInvariants checks the load-time invariants that are expressible
// from State alone. The Live/archived mutual-exclusion invariant needs the
// C1 archived store and is not checked here or by any caller of Load.
func (s *State) AssertInvariants() error {
	if len(s.TxoutIndexToSats) != len(s.TxoutIndexToAddress) {
		return fmt.Errorf("state: txout_index->sats has %d entries, txout_index->address has %d",
			len(s.TxoutIndexToSats), len(s.TxoutIndexToAddress))
	}
	for k := range s.TxoutIndexToSats {
		if _, ok := s.TxoutIndexToAddress[k]; !ok {
			return fmt.Errorf("state: txout %v present in sats map but not address map", k)
		}
	}
	txsWithOutputs := make(map[uint32]struct{}, len(s.TxIndexToTx))
	for k := range s.TxoutIndexToSats {
		txsWithOutputs[k.TxIndex] = struct{}{}
	}
	for txIndex, tx := range s.TxIndexToTx {
		if _, ok := txsWithOutputs[txIndex]; !ok && tx.RemainingSpendableOutputs > 0 {
			return fmt.Errorf("state: tx_index %d claims %d remaining outputs but none found in txout maps", txIndex, tx.RemainingSpendableOutputs)
		}
	}
	return nil
}
