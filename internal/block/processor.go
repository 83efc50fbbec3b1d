// Package block implements the C4 block processor: the per-block algorithm
// that resolves inputs, mutates live state, maintains cohort aggregates,
// and derives per-block summaries.
package block

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/satonomics-go/utxo-indexer/internal/blocksource"
	"github.com/satonomics-go/utxo-indexer/internal/cohort"
	"github.com/satonomics-go/utxo-indexer/internal/oracle"
	"github.com/satonomics-go/utxo-indexer/internal/rawaddress"
	"github.com/satonomics-go/utxo-indexer/internal/state"
	"github.com/satonomics-go/utxo-indexer/internal/store"
)

// ProcessedBlock is the bundle handed to C6 after a block is fully
// processed.
type ProcessedBlock struct {
	Height             uint32
	DateIndex          uint16
	IsDateLastBlock    bool
	Timestamp          uint32
	BlockPrice         float64
	DateClosePrice     float64
	TxCount            int
	Fees               uint64
	Subsidy            uint64 // block reward alone, fees already excluded
	SatBlocksDestroyed uint64
	SatDaysDestroyed   uint64
	TouchedAddresses   int
}

// Processor runs the per-block algorithm against a shared set of C1 stores,
// C2 live state, and C3 cohort aggregates.
type Processor struct {
	classifier    *rawaddress.Classifier
	txidStore     *store.TxidStore
	addressStore  *store.AddressStore
	archivedStore *store.ArchivedStore
	st            *state.State
	liquidity     *cohort.AddressLiquiditySplit
	ages          *cohort.AgeCohorts
	priceOracle   oracle.Oracle
	workers       int
}

func NewProcessor(
	classifier *rawaddress.Classifier,
	txidStore *store.TxidStore,
	addressStore *store.AddressStore,
	archivedStore *store.ArchivedStore,
	st *state.State,
	liquidity *cohort.AddressLiquiditySplit,
	ages *cohort.AgeCohorts,
	priceOracle oracle.Oracle,
	workers int,
) *Processor {
	if workers < 1 {
		workers = 1
	}
	return &Processor{
		classifier:    classifier,
		txidStore:     txidStore,
		addressStore:  addressStore,
		archivedStore: archivedStore,
		st:            st,
		liquidity:     liquidity,
		ages:          ages,
		priceOracle:   priceOracle,
		workers:       workers,
	}
}

type outputDecision struct {
	ignored bool
	sats    uint64
	addr    rawaddress.RawAddress
}

// ProcessBlock resolves every input, mutates live state, updates the
// cohort aggregates, and derives this block's summary.
func (p *Processor) ProcessBlock(ctx context.Context, blk *blocksource.Block, isDateLastBlock bool) (*ProcessedBlock, error) {
	timestamp := uint32(blk.Header.Timestamp.Unix())

	// Step 1: price resolution.
	blockPrice, err := p.priceOracle.HeightToClose(blk.Height, timestamp)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: height %d: %v", ErrFatal, ErrMissingPrice, blk.Height, err)
	}
	var dateClosePrice float64
	blockDate := truncateToUTCDay(blk.Header.Timestamp)
	if isDateLastBlock {
		dateClosePrice, err = p.priceOracle.DateToClose(blockDate)
		if err != nil {
			return nil, fmt.Errorf("%w: %w: date %s: %v", ErrFatal, ErrMissingPrice, blockDate, err)
		}
	}

	// Step 2: date bookkeeping + new BlockRecord.
	dateIndex, err := p.currentOrNewDateIndex(blockDate)
	if err != nil {
		return nil, err
	}
	rec := &cohort.BlockRecord{
		Height:       blk.Height,
		DateIndex:    dateIndex,
		Timestamp:    timestamp,
		PriceAtBlock: blockPrice,
		VintageYear:  blockDate.Year(),
	}
	blockPath := p.st.AppendBlockRecord(dateIndex, rec)

	// rec starts life at age 0; register it for future boundary crossings,
	// then advance every already-registered BlockRecord's membership up to
	// this block's timestamp before any of this block's spends touch them.
	p.ages.Register(rec)
	if err := p.ages.AdvanceTip(timestamp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFatal, err)
	}

	// Steps 3-5: output decode and input prefetch run concurrently; they
	// touch disjoint data (outputs vs. inputs), so this is genuine
	// parallelism, not just a fan-out over independent pieces of one task.
	decode := make([][]outputDecision, len(blk.Txs))
	prevTxIndex := make([][]uint32, len(blk.Txs))
	prevTxFound := make([][]bool, len(blk.Txs))

	var wg sync.WaitGroup
	wg.Add(2)
	var decodeErr, prefetchErr error
	go func() {
		defer wg.Done()
		decodeErr = p.decodeOutputs(blk, decode)
	}()
	go func() {
		defer wg.Done()
		prefetchErr = p.prefetchInputs(blk, prevTxIndex, prevTxFound)
	}()
	wg.Wait()
	if decodeErr != nil {
		return nil, decodeErr
	}
	if prefetchErr != nil {
		return nil, prefetchErr
	}

	// Archived-address prefetch: needs the addresses decode just produced,
	// so it runs after decode completes; internally it fans out across
	// candidates since each lookup is an independent disk read.
	archivedCache, err := p.prefetchArchived(decode)
	if err != nil {
		return nil, err
	}

	// Step 6: sequential tx loop.
	touched := make(map[uint32]addressDelta)
	var fees, outputSum, inputSum uint64
	var satBlocksDestroyed, satDaysDestroyed uint64
	perBlockAddrCache := make(map[string]uint32)

	for ti, tx := range blk.Txs {
		txIndex := p.txidStore.Allocate()
		txid := [32]byte(tx.TxHash())

		var anyNonIgnored bool
		var remaining uint32

		for vi, d := range decode[ti] {
			outputSum += d.sats
			if d.sats == 0 {
				continue // included in decode only for symmetry with input indexing; genuinely ignored
			}
			if d.ignored {
				continue
			}
			if vi > 65535 {
				return nil, fmt.Errorf("%w: vout %d exceeds 65535 in tx %x", ErrFatal, vi, txid)
			}
			anyNonIgnored = true

			addrIndex, _ := p.resolveAddressIndex(d.addr, perBlockAddrCache)
			liveRec, _, err := p.getOrPromoteLive(addrIndex, d.addr.Kind, archivedCache)
			if err != nil {
				return nil, err
			}

			delta := touched[addrIndex]
			if !delta.seen {
				delta = newAddressDelta(liveRec)
			}

			liveRec.Receive(d.sats, blockPrice)
			rec.AmountHeld += d.sats
			rec.SpendableOutputCount++
			remaining++
			if err := p.ages.ApplyMembershipDiff(nil, cohort.MembershipSet(0, rec.VintageYear), d.sats, 1, blockPrice); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrFatal, err)
			}

			delta.seen = true
			delta.received += d.sats
			touched[addrIndex] = delta

			txout := state.TxoutIndex{TxIndex: txIndex, Vout: uint16(vi)}
			p.st.TxoutIndexToSats[txout] = d.sats
			p.st.TxoutIndexToAddress[txout] = addrIndex
		}

		if anyNonIgnored {
			p.txidStore.Insert(txid, txIndex)
			p.st.TxIndexToTx[txIndex] = &state.TxRecord{BlockPath: blockPath, RemainingSpendableOutputs: remaining}
		}

		if tx.TxIn == nil || isCoinbase(&tx) {
			continue
		}

		for ii, in := range tx.TxIn {
			if in.PreviousOutPoint.Index > 65535 {
				return nil, fmt.Errorf("%w: prevout vout %d exceeds 65535", ErrFatal, in.PreviousOutPoint.Index)
			}
			if !prevTxFound[ti][ii] {
				continue // recoverable skip: prior output was ignored (zero-value), never indexed
			}
			prevIndex := prevTxIndex[ti][ii]
			prevTxout := state.TxoutIndex{TxIndex: prevIndex, Vout: uint16(in.PreviousOutPoint.Index)}

			sats, ok := p.st.TxoutIndexToSats[prevTxout]
			if !ok {
				continue // recoverable skip: a prior checkpoint already consumed this output
			}
			addrIndex, ok := p.st.TxoutIndexToAddress[prevTxout]
			if !ok {
				return nil, fmt.Errorf("%w: txout %v has sats but no address", ErrFatal, prevTxout)
			}
			delete(p.st.TxoutIndexToSats, prevTxout)
			delete(p.st.TxoutIndexToAddress, prevTxout)
			inputSum += sats

			producingTx, ok := p.st.TxIndexToTx[prevIndex]
			if !ok {
				return nil, fmt.Errorf("%w: tx_index %d resolvable but missing TxRecord", ErrFatal, prevIndex)
			}
			producingRec, err := p.st.BlockRecordAt(producingTx.BlockPath)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrFatal, err)
			}

			if err := p.ages.LeaveCurrent(producingRec, timestamp, sats, 1); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrFatal, err)
			}
			producingRec.DecrementSpend(sats)

			satBlocksDestroyed += uint64(blk.Height-producingRec.Height) * sats
			producingDateUnix, err := p.st.DateAt(producingRec.DateIndex)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrFatal, err)
			}
			days := (blockDate.Unix() - producingDateUnix) / 86400
			if days > 0 {
				satDaysDestroyed += uint64(days) * sats
			}

			liveRec, ok := p.st.AddressIndexToLive[addrIndex]
			if !ok {
				return nil, fmt.Errorf("%w: address_index %d spent but not live", ErrFatal, addrIndex)
			}
			delta := touched[addrIndex]
			if !delta.seen {
				delta = newAddressDelta(liveRec)
			}

			pnl, err := liveRec.Spend(sats, blockPrice)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrFatal, err)
			}

			delta.seen = true
			delta.sent += sats
			delta.pnl += pnl
			touched[addrIndex] = delta

			if liveRec.Amount == 0 {
				p.archiveAddress(addrIndex, liveRec)
			}

			producingTx.RemainingSpendableOutputs--
			if producingTx.RemainingSpendableOutputs == 0 {
				delete(p.st.TxIndexToTx, prevIndex)
				p.txidStore.Remove([32]byte(in.PreviousOutPoint.Hash))
			}
		}
	}

	fees = computeFees(inputSum, outputSum, blk)
	coinbaseOut := coinbaseValue(blk)
	subsidy := uint64(0)
	if coinbaseOut >= fees {
		subsidy = coinbaseOut - fees
	}

	// Step 7: post-pass cohort updates for every touched address.
	for addrIndex, delta := range touched {
		if err := p.applyLiquidityMove(addrIndex, delta); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFatal, err)
		}
	}

	return &ProcessedBlock{
		Height:             blk.Height,
		DateIndex:          dateIndex,
		IsDateLastBlock:    isDateLastBlock,
		Timestamp:          timestamp,
		BlockPrice:         blockPrice,
		DateClosePrice:     dateClosePrice,
		TxCount:            len(blk.Txs),
		Fees:               fees,
		Subsidy:            subsidy,
		SatBlocksDestroyed: satBlocksDestroyed,
		SatDaysDestroyed:   satDaysDestroyed,
		TouchedAddresses:   len(touched),
	}, nil
}

func truncateToUTCDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func (p *Processor) currentOrNewDateIndex(blockDate time.Time) (uint16, error) {
	last, ok := p.st.LastDateIndex()
	if !ok {
		return p.st.PushDate(blockDate.Unix()), nil
	}
	lastUnix, err := p.st.DateAt(last)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrFatal, err)
	}
	if blockDate.Unix() > lastUnix {
		return p.st.PushDate(blockDate.Unix()), nil
	}
	return last, nil
}

func (p *Processor) decodeOutputs(blk *blocksource.Block, out [][]outputDecision) error {
	sem := make(chan struct{}, p.workers)
	var wg sync.WaitGroup
	for ti := range blk.Txs {
		wg.Add(1)
		sem <- struct{}{}
		go func(ti int) {
			defer wg.Done()
			defer func() { <-sem }()
			tx := blk.Txs[ti]
			decisions := make([]outputDecision, len(tx.TxOut))
			for vi, o := range tx.TxOut {
				decisions[vi] = p.decodeOutput(o)
			}
			out[ti] = decisions
		}(ti)
	}
	wg.Wait()
	return nil
}

func (p *Processor) decodeOutput(o *wire.TxOut) outputDecision {
	if o.Value <= 0 {
		return outputDecision{ignored: true}
	}
	unspendable := isProvablyUnspendable(o.PkScript)
	class := txscript.GetScriptClass(o.PkScript)
	isOpReturn := class == txscript.NullDataTy
	if unspendable || isOpReturn {
		return outputDecision{ignored: true, sats: uint64(o.Value)}
	}
	addr := p.classifier.Classify(o.PkScript, unspendable, isOpReturn)
	return outputDecision{sats: uint64(o.Value), addr: addr}
}

func isProvablyUnspendable(script []byte) bool {
	return len(script) > 0 && script[0] == txscript.OP_RETURN
}

func (p *Processor) prefetchInputs(blk *blocksource.Block, prevTxIndex [][]uint32, prevTxFound [][]bool) error {
	for ti := range blk.Txs {
		tx := &blk.Txs[ti]
		if isCoinbase(tx) {
			continue
		}
		idxs := make([]uint32, len(tx.TxIn))
		found := make([]bool, len(tx.TxIn))
		for ii, in := range tx.TxIn {
			txid := [32]byte(in.PreviousOutPoint.Hash)
			if v, ok, err := p.txidStore.Get(txid); err == nil && ok {
				idxs[ii] = v
				found[ii] = true
				continue
			}
			if v, ok := p.txidStore.GetPending(txid); ok {
				idxs[ii] = v
				found[ii] = true
			}
		}
		prevTxIndex[ti] = idxs
		prevTxFound[ti] = found
	}
	return nil
}

func (p *Processor) prefetchArchived(decode [][]outputDecision) (map[uint32]store.ArchivedAddressRecord, error) {
	type candidate struct {
		index uint32
		addr  rawaddress.RawAddress
	}
	seen := make(map[string]struct{})
	var candidates []candidate
	cache := make(map[string]uint32)

	for _, txDecode := range decode {
		for _, d := range txDecode {
			if d.ignored || d.sats == 0 {
				continue
			}
			key := string(d.addr.Key())
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}

			addrIndex, existed := p.lookupExistingAddressIndex(d.addr, cache)
			if !existed {
				continue
			}
			if _, isLive := p.st.AddressIndexToLive[addrIndex]; isLive {
				continue
			}
			candidates = append(candidates, candidate{index: addrIndex, addr: d.addr})
		}
	}

	result := make(map[uint32]store.ArchivedAddressRecord, len(candidates))
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, p.workers)
	var firstErr error

	for _, c := range candidates {
		wg.Add(1)
		sem <- struct{}{}
		go func(c candidate) {
			defer wg.Done()
			defer func() { <-sem }()
			rec, ok, err := p.archivedStore.Get(c.index)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("%w: read archived address %d: %v", ErrFatal, c.index, err)
				}
				mu.Unlock()
				return
			}
			if !ok {
				if rec, ok = p.archivedStore.GetPending(c.index); !ok {
					return
				}
			}
			mu.Lock()
			result[c.index] = rec
			mu.Unlock()
		}(c)
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return result, nil
}

// lookupExistingAddressIndex reports whether addr already has an assigned
// address_index, without allocating a new one.
func (p *Processor) lookupExistingAddressIndex(addr rawaddress.RawAddress, cache map[string]uint32) (uint32, bool) {
	key := string(addr.Key())
	if idx, ok := cache[key]; ok {
		return idx, true
	}
	if idx, ok, err := p.addressStore.Get(addr); err == nil && ok {
		cache[key] = idx
		return idx, true
	}
	if idx, ok := p.addressStore.GetPending(addr); ok {
		cache[key] = idx
		return idx, true
	}
	return 0, false
}

// resolveAddressIndex returns addr's address_index, allocating and
// inserting a new one if this is its first sight anywhere (committed,
// pending, or earlier in this same block).
func (p *Processor) resolveAddressIndex(addr rawaddress.RawAddress, cache map[string]uint32) (uint32, bool) {
	if idx, ok := p.lookupExistingAddressIndex(addr, cache); ok {
		return idx, false
	}
	idx := p.addressStore.Allocate()
	p.addressStore.Insert(addr, idx)
	cache[string(addr.Key())] = idx
	return idx, true
}

// getOrPromoteLive returns the live record for addrIndex, promoting it
// from the archived cache (carrying its lifetime total forward) or
// creating a fresh record if this is brand new.
//
// archivedCache is a snapshot taken before the tx loop started, so it
// misses an address archived and then paid again later within this same
// block; GetPending catches that case since archiveAddress's Insert lands
// straight in the shard's pending map.
func (p *Processor) getOrPromoteLive(addrIndex uint32, kind rawaddress.Kind, archivedCache map[uint32]store.ArchivedAddressRecord) (*state.LiveAddressRecord, bool, error) {
	if rec, ok := p.st.AddressIndexToLive[addrIndex]; ok {
		return rec, false, nil
	}
	if arch, ok := archivedCache[addrIndex]; ok {
		return p.promoteArchived(addrIndex, arch), true, nil
	}
	if arch, ok := p.archivedStore.GetPending(addrIndex); ok {
		return p.promoteArchived(addrIndex, arch), true, nil
	}
	rec := state.NewLiveAddressRecord(kind)
	p.st.AddressIndexToLive[addrIndex] = rec
	return rec, false, nil
}

func (p *Processor) promoteArchived(addrIndex uint32, arch store.ArchivedAddressRecord) *state.LiveAddressRecord {
	rec := &state.LiveAddressRecord{Kind: arch.Kind, Sent: arch.TotalTransferred, Received: arch.TotalTransferred}
	p.st.AddressIndexToLive[addrIndex] = rec
	p.archivedStore.Remove(addrIndex)
	p.archivedStore.RemovePending(addrIndex)
	return rec
}

func (p *Processor) archiveAddress(addrIndex uint32, rec *state.LiveAddressRecord) {
	p.archivedStore.Insert(addrIndex, store.ArchivedAddressRecord{Kind: rec.Kind, TotalTransferred: rec.Received})
	delete(p.st.AddressIndexToLive, addrIndex)
}

// addressDelta accumulates one block's touch on a single address, used to
// drive the post-pass liquidity cohort move.
type addressDelta struct {
	seen                            bool
	oldKind                         rawaddress.Kind
	oldAmount, oldSent, oldReceived uint64
	oldUTXOs                        uint32
	oldMeanPrice                    float64
	received, sent                  uint64
	pnl                             float64
}

func newAddressDelta(current *state.LiveAddressRecord) addressDelta {
	return addressDelta{
		seen:         true,
		oldKind:      current.Kind,
		oldAmount:    current.Amount,
		oldSent:      current.Sent,
		oldReceived:  current.Received,
		oldUTXOs:     current.UTXOCount,
		oldMeanPrice: current.MeanPricePaid,
	}
}

func (p *Processor) applyLiquidityMove(addrIndex uint32, delta addressDelta) error {
	oldClass := cohort.ClassifyLiquidity(delta.oldSent, delta.oldReceived)
	oldMembership := p.liquidity.MembershipFor(delta.oldAmount, delta.oldKind)
	hadOld := delta.oldAmount > 0

	current, isLive := p.st.AddressIndexToLive[addrIndex]
	hasNew := isLive && current.Amount > 0
	var newMembership cohort.Membership
	var newClass cohort.LiquidityClassification
	var newAmount uint64
	var newUTXOs uint32
	var newMeanPrice float64
	if hasNew {
		newClass = cohort.ClassifyLiquidity(current.Sent, current.Received)
		newMembership = p.liquidity.MembershipFor(current.Amount, current.Kind)
		newAmount = current.Amount
		newUTXOs = current.UTXOCount
		newMeanPrice = current.MeanPricePaid
	}

	return p.liquidity.Move(
		oldMembership, delta.oldAmount, delta.oldUTXOs, delta.oldMeanPrice, oldClass, hadOld,
		newMembership, newAmount, newUTXOs, newMeanPrice, newClass, hasNew,
	)
}

func isCoinbase(tx *wire.MsgTx) bool {
	if len(tx.TxIn) != 1 {
		return false
	}
	prev := tx.TxIn[0].PreviousOutPoint
	return prev.Index == 0xffffffff && prev.Hash == (chainhash.Hash{})
}

func computeFees(inputSum, outputSum uint64, blk *blocksource.Block) uint64 {
	if len(blk.Txs) == 0 {
		return 0
	}
	// Coinbase output is subsidy+fees, not itself a fee; exclude it from
	// both sums before differencing.
	coinbaseOut := coinbaseValue(blk)
	adjOut := outputSum
	if adjOut >= coinbaseOut {
		adjOut -= coinbaseOut
	}
	if inputSum >= adjOut {
		return inputSum - adjOut
	}
	return 0
}

func coinbaseValue(blk *blocksource.Block) uint64 {
	if len(blk.Txs) == 0 {
		return 0
	}
	var sum uint64
	for _, o := range blk.Txs[0].TxOut {
		if o.Value > 0 {
			sum += uint64(o.Value)
		}
	}
	return sum
}

