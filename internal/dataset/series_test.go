package dataset

import "testing"

func TestRegisterAddressCohortSeriesPaths(t *testing.T) {
	r := NewRegistry()
	RegisterAddressCohortSeries(r)

	want := []string{
		"address/cohort=shrimp/liquidity=all/supply/total",
		"address/kind=p2pkh/liquidity=illiquid/price_paid/mean_price",
	}
	names := r.HeightNames()
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	for _, w := range want {
		if !set[w] {
			t.Errorf("expected series %q to be registered", w)
		}
	}
}

func TestRegisterAgeCohortSeriesPaths(t *testing.T) {
	r := NewRegistry()
	RegisterAgeCohortSeries(r, 2009, 2011)

	want := []string{
		"utxo/short_term_holders/supply/total",
		"utxo/long_term_holders/supply/total",
		"utxo/vintage_2009/supply/total",
		"utxo/vintage_2011/price_paid/realized_cap",
	}
	names := r.HeightNames()
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	for _, w := range want {
		if !set[w] {
			t.Errorf("expected series %q to be registered", w)
		}
	}
}

func TestRegisterCointimeAndMiningAndDateSeries(t *testing.T) {
	r := NewRegistry()
	RegisterCointimeSeries(r)
	RegisterMiningSeries(r)
	RegisterDateSeries(r)

	heights := r.HeightNames()
	heightSet := make(map[string]bool, len(heights))
	for _, n := range heights {
		heightSet[n] = true
	}
	for _, w := range []string{"cointime/liveliness", "cointime/vaultedness", "mining/subsidy", "mining/fees"} {
		if !heightSet[w] {
			t.Errorf("expected height series %q to be registered", w)
		}
	}

	dates := r.DateNames()
	dateSet := make(map[string]bool, len(dates))
	for _, n := range dates {
		dateSet[n] = true
	}
	for _, w := range []string{"date/block_count", "date/first_height", "date/last_height", "date/close"} {
		if !dateSet[w] {
			t.Errorf("expected date series %q to be registered", w)
		}
	}
}
