package dataset

import (
	"fmt"

	"github.com/satonomics-go/utxo-indexer/internal/cohort"
)

// histogramMetrics names the per-cohort series path suffixes derived from
// one cohort.Histogram (the one-shot derivation plus the raw
// supply/utxo_count accumulators), shared by every address-liquidity and
// UTXO-age cohort below.
var histogramMetrics = []string{
	"supply/total",
	"supply/utxo_count",
	"price_paid/realized_cap",
	"price_paid/mean_price",
	"price_paid/supply_in_profit",
	"price_paid/unrealized_profit",
	"price_paid/unrealized_loss",
}

var tranches = []string{"all", "illiquid", "liquid", "highly_liquid"}

// RegisterAddressCohortSeries declares every address-liquidity series path
// (example: "address/cohort=whale/liquidity=illiquid/price_paid/
// realized_cap"): one per size bucket and one per address kind, each split
// across the four liquidity tranches, each carrying the full metric list.
func RegisterAddressCohortSeries(r *Registry) {
	for _, b := range cohort.AllSizeBuckets {
		for _, tranche := range tranches {
			for _, metric := range histogramMetrics {
				r.Height(fmt.Sprintf("address/cohort=%s/liquidity=%s/%s", b, tranche, metric))
			}
		}
	}
	for _, k := range cohort.AllKinds {
		for _, tranche := range tranches {
			for _, metric := range histogramMetrics {
				r.Height(fmt.Sprintf("address/kind=%s/liquidity=%s/%s", k, tranche, metric))
			}
		}
	}
}

// RegisterAgeCohortSeries declares every UTXO-age series path (example:
// "utxo/up_to_1y/supply/total"), covering up-to, from-to,
// vintage-year, and short/long-term-holder cohorts.
func RegisterAgeCohortSeries(r *Registry, vintageYearsFrom, vintageYearsTo int) {
	for _, t := range cohort.UpToDaysTiers {
		for _, metric := range histogramMetrics {
			r.Height(fmt.Sprintf("utxo/up_to_%dd/%s", t, metric))
		}
	}
	for _, ft := range cohort.FromToDaysTiers {
		for _, metric := range histogramMetrics {
			r.Height(fmt.Sprintf("utxo/from_%d_to_%dd/%s", ft[0], ft[1], metric))
		}
	}
	for y := vintageYearsFrom; y <= vintageYearsTo; y++ {
		for _, metric := range histogramMetrics {
			r.Height(fmt.Sprintf("utxo/vintage_%d/%s", y, metric))
		}
	}
	for _, metric := range histogramMetrics {
		r.Height(fmt.Sprintf("utxo/short_term_holders/%s", metric))
		r.Height(fmt.Sprintf("utxo/long_term_holders/%s", metric))
	}
}

// RegisterCointimeSeries declares the cointime economics derivatives of
// SPEC_FULL.md §3 (liveliness/vaultedness).
func RegisterCointimeSeries(r *Registry) {
	r.Height("cointime/liveliness")
	r.Height("cointime/vaultedness")
	r.Height("cointime/coinblocks_destroyed")
	r.Height("cointime/coinblocks_destroyed_cumulative")
	r.Height("cointime/coindays_destroyed")
	r.Height("cointime/coindays_destroyed_cumulative")
}

// RegisterMiningSeries declares the mining economics series of
// SPEC_FULL.md §3.
func RegisterMiningSeries(r *Registry) {
	r.Height("mining/subsidy")
	r.Height("mining/fees")
	r.Height("mining/subsidy_in_dollars")
}

// RegisterDateSeries declares the per-date metadata series of
// SPEC_FULL.md §3.
func RegisterDateSeries(r *Registry) {
	r.Date("date/block_count")
	r.Date("date/first_height")
	r.Date("date/last_height")
	r.Date("date/close")
}
