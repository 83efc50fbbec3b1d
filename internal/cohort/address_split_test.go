package cohort

import (
	"testing"

	"github.com/satonomics-go/utxo-indexer/internal/rawaddress"
)

func TestClassifySizeBuckets(t *testing.T) {
	cases := []struct {
		amount uint64
		want   SizeBucket
	}{
		{0, SizePlankton},
		{999_999, SizePlankton},
		{1_000_000, SizeShrimp},
		{99_999_999, SizeCrab},
		{100_000_000_000, SizeHumpback},
		{1_000_000_000_000, SizeMegalodon},
	}
	for _, c := range cases {
		if got := ClassifySize(c.amount); got != c.want {
			t.Errorf("ClassifySize(%d) = %q, want %q", c.amount, got, c.want)
		}
	}
}

func TestAddressLiquiditySplitMoveJoinAndLeave(t *testing.T) {
	s := NewAddressLiquiditySplit()
	membership := s.MembershipFor(5_000_000, rawaddress.KindP2WPKH)
	class := ClassifyLiquidity(0, 5_000_000)

	if err := s.Move(
		Membership{}, 0, 0, 0, LiquidityClassification{}, false,
		membership, 5_000_000, 1, 100, class, true,
	); err != nil {
		t.Fatalf("join move: %v", err)
	}

	if s.BySize[SizeShrimp].All.Supply != 5_000_000 {
		t.Fatalf("BySize[shrimp].All.Supply = %d, want 5000000", s.BySize[SizeShrimp].All.Supply)
	}
	if s.ByKind[rawaddress.KindP2WPKH].All.Supply != 5_000_000 {
		t.Fatalf("ByKind[p2wpkh].All.Supply = %d, want 5000000", s.ByKind[rawaddress.KindP2WPKH].All.Supply)
	}

	// A later move: grows past the shrimp bucket into crab, moving cohorts.
	newMembership := s.MembershipFor(50_000_000, rawaddress.KindP2WPKH)
	newClass := ClassifyLiquidity(0, 50_000_000)
	if err := s.Move(
		membership, 5_000_000, 1, 100, class, true,
		newMembership, 50_000_000, 1, 100, newClass, true,
	); err != nil {
		t.Fatalf("resize move: %v", err)
	}

	if s.BySize[SizeShrimp].All.Supply != 0 {
		t.Fatalf("BySize[shrimp].All.Supply = %d, want 0 after growing out of the bucket", s.BySize[SizeShrimp].All.Supply)
	}
	if s.BySize[SizeCrab].All.Supply != 50_000_000 {
		t.Fatalf("BySize[crab].All.Supply = %d, want 50000000", s.BySize[SizeCrab].All.Supply)
	}

	// Leave: spend everything, Move with hasNew=false.
	if err := s.Move(
		newMembership, 50_000_000, 1, 100, newClass, true,
		Membership{}, 0, 0, 0, LiquidityClassification{}, false,
	); err != nil {
		t.Fatalf("leave move: %v", err)
	}
	if s.BySize[SizeCrab].All.Supply != 0 {
		t.Fatalf("BySize[crab].All.Supply = %d, want 0 after fully spent", s.BySize[SizeCrab].All.Supply)
	}
}

func TestAddressLiquiditySplitRebuildLive(t *testing.T) {
	s := NewAddressLiquiditySplit()
	if err := s.RebuildLive(1_000_000_000, 3, 200, 100, 1000, rawaddress.KindP2TR); err != nil {
		t.Fatalf("rebuild live: %v", err)
	}
	if s.BySize[SizeShark].All.Supply != 1_000_000_000 {
		t.Fatalf("BySize[shark].All.Supply = %d, want 1000000000", s.BySize[SizeShark].All.Supply)
	}
	if s.ByKind[rawaddress.KindP2TR].All.UTXOCount != 3 {
		t.Fatalf("ByKind[p2tr].All.UTXOCount = %d, want 3", s.ByKind[rawaddress.KindP2TR].All.UTXOCount)
	}
}

func TestAddressLiquiditySplitRebuildLiveZeroAmountIsNoop(t *testing.T) {
	s := NewAddressLiquiditySplit()
	if err := s.RebuildLive(0, 0, 0, 0, 0, rawaddress.KindP2PKH); err != nil {
		t.Fatalf("rebuild live: %v", err)
	}
	if s.BySize[SizePlankton].All.Supply != 0 {
		t.Fatalf("rebuilding a zero-amount address should not touch any histogram")
	}
}
