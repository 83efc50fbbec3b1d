package dataset

import (
	"fmt"

	"github.com/satonomics-go/utxo-indexer/internal/block"
	"github.com/satonomics-go/utxo-indexer/internal/cohort"
)

// Emitter is the C6 collaborator the driver hands every ProcessedBlock to
// it inserts one value per height into every registered series, deriving
// cohort metrics from the live histograms.
type Emitter struct {
	reg       *Registry
	liquidity *cohort.AddressLiquiditySplit
	ages      *cohort.AgeCohorts

	coinblocksCum          uint64
	coindaysCum            uint64
	coinblocksTotalCreated uint64
	haveDate               bool
	lastDateIndex          uint16
	dateBlockCount         uint32
	dateFirstHeight        uint32
}

func NewEmitter(reg *Registry, liquidity *cohort.AddressLiquiditySplit, ages *cohort.AgeCohorts) *Emitter {
	return &Emitter{reg: reg, liquidity: liquidity, ages: ages}
}

// EmitBlock inserts this height's value into every series, deriving
// cohort metrics from the live histograms before emission.
func (e *Emitter) EmitBlock(pb *block.ProcessedBlock) error {
	h := pb.Height

	if err := e.emitAddressCohorts(h, pb.BlockPrice); err != nil {
		return err
	}
	if err := e.emitAgeCohorts(h, pb.BlockPrice); err != nil {
		return err
	}

	if err := e.reg.Height("mining/subsidy").Insert(h, float64(pb.Subsidy)); err != nil {
		return err
	}
	if err := e.reg.Height("mining/fees").Insert(h, float64(pb.Fees)); err != nil {
		return err
	}
	if err := e.reg.Height("mining/subsidy_in_dollars").Insert(h, float64(pb.Subsidy)/1e8*pb.BlockPrice); err != nil {
		return err
	}

	e.coinblocksCum += pb.SatBlocksDestroyed
	e.coindaysCum += pb.SatDaysDestroyed
	if err := e.reg.Height("cointime/coinblocks_destroyed").Insert(h, float64(pb.SatBlocksDestroyed)); err != nil {
		return err
	}
	if err := e.reg.Height("cointime/coinblocks_destroyed_cumulative").Insert(h, float64(e.coinblocksCum)); err != nil {
		return err
	}
	if err := e.reg.Height("cointime/coindays_destroyed").Insert(h, float64(pb.SatDaysDestroyed)); err != nil {
		return err
	}
	if err := e.reg.Height("cointime/coindays_destroyed_cumulative").Insert(h, float64(e.coindaysCum)); err != nil {
		return err
	}
	// coinblocks_created this block = every spendable output's age-0
	// contribution, i.e. one coinblock per sat per block it survives; at
	// creation that is just the block's own held amount (age 0 contributes
	// its sats once). liveliness/vaultedness need the cumulative created
	// total, which grows every block by the total live supply (every
	// unspent sat ages one more coinblock each block).
	e.coinblocksTotalCreated += e.liveSupply()
	liveliness := 0.0
	if e.coinblocksTotalCreated > 0 {
		liveliness = float64(e.coinblocksCum) / float64(e.coinblocksTotalCreated)
	}
	if err := e.reg.Height("cointime/liveliness").Insert(h, liveliness); err != nil {
		return err
	}
	if err := e.reg.Height("cointime/vaultedness").Insert(h, 1-liveliness); err != nil {
		return err
	}

	if !e.haveDate || pb.DateIndex != e.lastDateIndex {
		e.dateBlockCount = 0
		e.dateFirstHeight = h
		e.haveDate = true
	}
	e.lastDateIndex = pb.DateIndex
	e.dateBlockCount++

	if pb.IsDateLastBlock {
		if err := e.reg.Date("date/block_count").Insert(pb.DateIndex, float64(e.dateBlockCount)); err != nil {
			return err
		}
		if err := e.reg.Date("date/first_height").Insert(pb.DateIndex, float64(e.dateFirstHeight)); err != nil {
			return err
		}
		if err := e.reg.Date("date/last_height").Insert(pb.DateIndex, float64(h)); err != nil {
			return err
		}
		if err := e.reg.Date("date/close").Insert(pb.DateIndex, pb.DateClosePrice); err != nil {
			return err
		}
	}

	return nil
}

// liveSupply sums every size bucket's total histogram. Size buckets
// partition the live supply exhaustively and without overlap, so this
// equals the whole chain's current live supply.
func (e *Emitter) liveSupply() uint64 {
	var sum uint64
	for _, b := range cohort.AllSizeBuckets {
		sum += e.liquidity.BySize[b].All.Supply
	}
	return sum
}

func (e *Emitter) emitAddressCohorts(h uint32, price float64) error {
	for _, b := range cohort.AllSizeBuckets {
		t := e.liquidity.BySize[b]
		if err := e.emitTranches(h, fmt.Sprintf("address/cohort=%s", b), t, price); err != nil {
			return err
		}
	}
	for _, k := range cohort.AllKinds {
		t := e.liquidity.ByKind[k]
		if err := e.emitTranches(h, fmt.Sprintf("address/kind=%s", k), t, price); err != nil {
			return err
		}
	}
	return nil
}

func (e *Emitter) emitTranches(h uint32, prefix string, t *cohort.Tranches, price float64) error {
	pairs := []struct {
		name string
		hist *cohort.Histogram
	}{
		{"all", t.All}, {"illiquid", t.Illiquid}, {"liquid", t.Liquid}, {"highly_liquid", t.HighlyLiquid},
	}
	for _, p := range pairs {
		if err := e.emitHistogram(h, fmt.Sprintf("%s/liquidity=%s", prefix, p.name), p.hist, price); err != nil {
			return err
		}
	}
	return nil
}

func (e *Emitter) emitAgeCohorts(h uint32, price float64) error {
	for _, t := range cohort.UpToDaysTiers {
		if err := e.emitHistogram(h, fmt.Sprintf("utxo/up_to_%dd", t), e.ages.UpTo[t], price); err != nil {
			return err
		}
	}
	for _, ft := range cohort.FromToDaysTiers {
		if err := e.emitHistogram(h, fmt.Sprintf("utxo/from_%d_to_%dd", ft[0], ft[1]), e.ages.FromTo[ft], price); err != nil {
			return err
		}
	}
	for y, hist := range e.ages.Vintage {
		if err := e.emitHistogram(h, fmt.Sprintf("utxo/vintage_%d", y), hist, price); err != nil {
			return err
		}
	}
	if err := e.emitHistogram(h, "utxo/short_term_holders", e.ages.ShortTerm, price); err != nil {
		return err
	}
	return e.emitHistogram(h, "utxo/long_term_holders", e.ages.LongTerm, price)
}

func (e *Emitter) emitHistogram(h uint32, prefix string, hist *cohort.Histogram, price float64) error {
	d := hist.Derive(price)
	values := map[string]float64{
		"supply/total":                 float64(hist.Supply),
		"supply/utxo_count":            float64(hist.UTXOCount),
		"price_paid/realized_cap":      d.RealizedCap,
		"price_paid/mean_price":        d.MeanPrice,
		"price_paid/supply_in_profit":  float64(d.SupplyInProfit),
		"price_paid/unrealized_profit": d.UnrealizedProfit,
		"price_paid/unrealized_loss":   d.UnrealizedLoss,
	}
	for suffix, v := range values {
		if err := e.reg.Height(prefix + "/" + suffix).Insert(h, v); err != nil {
			return err
		}
	}
	return nil
}
