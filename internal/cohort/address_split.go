package cohort

import "github.com/satonomics-go/utxo-indexer/internal/rawaddress"

// SizeBucket is one of the address-size tiers.
type SizeBucket string

const (
	SizePlankton  SizeBucket = "plankton"
	SizeShrimp    SizeBucket = "shrimp"
	SizeCrab      SizeBucket = "crab"
	SizeFish      SizeBucket = "fish"
	SizeShark     SizeBucket = "shark"
	SizeWhale     SizeBucket = "whale"
	SizeHumpback  SizeBucket = "humpback"
	SizeMegalodon SizeBucket = "megalodon"
)

// ClassifySize buckets a live address by the sats it currently holds.
func ClassifySize(amountSats uint64) SizeBucket {
	switch {
	case amountSats < 1_000_000:
		return SizePlankton
	case amountSats < 10_000_000:
		return SizeShrimp
	case amountSats < 100_000_000:
		return SizeCrab
	case amountSats < 1_000_000_000:
		return SizeFish
	case amountSats < 10_000_000_000:
		return SizeShark
	case amountSats < 100_000_000_000:
		return SizeWhale
	case amountSats < 1_000_000_000_000:
		return SizeHumpback
	default:
		return SizeMegalodon
	}
}

var AllSizeBuckets = []SizeBucket{
	SizePlankton, SizeShrimp, SizeCrab, SizeFish, SizeShark, SizeWhale, SizeHumpback, SizeMegalodon,
}

var AllKinds = []rawaddress.Kind{
	rawaddress.KindP2PK, rawaddress.KindP2PKH, rawaddress.KindP2SH, rawaddress.KindP2WPKH,
	rawaddress.KindP2WSH, rawaddress.KindP2TR, rawaddress.KindMultisig, rawaddress.KindUnknown,
	rawaddress.KindEmpty,
}

// Tranches is one (size|kind) bucket's four liquidity-tranche histograms.
type Tranches struct {
	All          *Histogram
	Illiquid     *Histogram
	Liquid       *Histogram
	HighlyLiquid *Histogram
}

func newTranches() *Tranches {
	return &Tranches{
		All:          NewHistogram(),
		Illiquid:     NewHistogram(),
		Liquid:       NewHistogram(),
		HighlyLiquid: NewHistogram(),
	}
}

// apply increments (delta=+1) or decrements (delta=-1) amount/utxos, split
// by classification, into every tranche of t.
func (t *Tranches) apply(delta int, amount uint64, utxos uint32, meanPrice float64, class LiquidityClassification) error {
	illiquidAmt, liquidAmt, highlyAmt := class.SplitAmount(amount)
	illiquidCnt, liquidCnt, highlyCnt := class.SplitCount(utxos)

	if delta > 0 {
		t.All.Increment(amount, utxos, meanPrice)
		t.Illiquid.Increment(illiquidAmt, illiquidCnt, meanPrice)
		t.Liquid.Increment(liquidAmt, liquidCnt, meanPrice)
		t.HighlyLiquid.Increment(highlyAmt, highlyCnt, meanPrice)
		return nil
	}
	if err := t.All.Decrement(amount, utxos, meanPrice); err != nil {
		return err
	}
	if err := t.Illiquid.Decrement(illiquidAmt, illiquidCnt, meanPrice); err != nil {
		return err
	}
	if err := t.Liquid.Decrement(liquidAmt, liquidCnt, meanPrice); err != nil {
		return err
	}
	return t.HighlyLiquid.Decrement(highlyAmt, highlyCnt, meanPrice)
}

// AddressLiquiditySplit maintains every address-liquidity cohort (spec
// §4.3): one Tranches per size bucket, one per address kind.
type AddressLiquiditySplit struct {
	BySize map[SizeBucket]*Tranches
	ByKind map[rawaddress.Kind]*Tranches
}

func NewAddressLiquiditySplit() *AddressLiquiditySplit {
	s := &AddressLiquiditySplit{
		BySize: make(map[SizeBucket]*Tranches, len(AllSizeBuckets)),
		ByKind: make(map[rawaddress.Kind]*Tranches, len(AllKinds)),
	}
	for _, b := range AllSizeBuckets {
		s.BySize[b] = newTranches()
	}
	for _, k := range AllKinds {
		s.ByKind[k] = newTranches()
	}
	return s
}

// Membership is the (size, kind) bucket pair an address currently belongs to.
type Membership struct {
	Size SizeBucket
	Kind rawaddress.Kind
}

func (s *AddressLiquiditySplit) membershipFor(amount uint64, kind rawaddress.Kind) Membership {
	return Membership{Size: ClassifySize(amount), Kind: kind}
}

// Move applies the post-pass rule: decrement the old
// (bucket, tranche, price) contribution and increment the new one. Callers
// pass hadOld == false for an address that held nothing before (a pure
// receive) and hasNew == false for one that holds nothing after; the
// matching branch is then skipped and its Membership is ignored.
func (s *AddressLiquiditySplit) Move(
	old Membership, oldAmount uint64, oldUtxos uint32, oldMeanPrice float64, oldClass LiquidityClassification, hadOld bool,
	new_ Membership, newAmount uint64, newUtxos uint32, newMeanPrice float64, newClass LiquidityClassification, hasNew bool,
) error {
	if hadOld {
		if err := s.BySize[old.Size].apply(-1, oldAmount, oldUtxos, oldMeanPrice, oldClass); err != nil {
			return err
		}
		if err := s.ByKind[old.Kind].apply(-1, oldAmount, oldUtxos, oldMeanPrice, oldClass); err != nil {
			return err
		}
	}
	if hasNew {
		if err := s.BySize[new_.Size].apply(1, newAmount, newUtxos, newMeanPrice, newClass); err != nil {
			return err
		}
		if err := s.ByKind[new_.Kind].apply(1, newAmount, newUtxos, newMeanPrice, newClass); err != nil {
			return err
		}
	}
	return nil
}

// RebuildLive restores one live address's contribution to every
// size/kind/liquidity histogram, a pure join from nothing (used once per
// address on driver resume, since liquidity histogram state itself is
// never checkpointed).
func (s *AddressLiquiditySplit) RebuildLive(amount uint64, utxos uint32, meanPrice float64, sent, received uint64, kind rawaddress.Kind) error {
	if amount == 0 {
		return nil
	}
	class := ClassifyLiquidity(sent, received)
	membership := s.membershipFor(amount, kind)
	return s.Move(
		Membership{}, 0, 0, 0, LiquidityClassification{}, false,
		membership, amount, utxos, meanPrice, class, true,
	)
}

// MembershipFor exposes membershipFor for callers outside the package.
func (s *AddressLiquiditySplit) MembershipFor(amount uint64, kind rawaddress.Kind) Membership {
	return s.membershipFor(amount, kind)
}
