package cohort

import "testing"

func TestAgeInDays(t *testing.T) {
	if got := AgeInDays(86400*10, 0); got != 10 {
		t.Fatalf("AgeInDays = %d, want 10", got)
	}
	if got := AgeInDays(0, 86400*10); got != 0 {
		t.Fatalf("AgeInDays should clamp to 0 when tip precedes the block, got %d", got)
	}
}

func TestMembershipSetBoundaries(t *testing.T) {
	set := MembershipSet(1, 2020)
	if _, ok := set[keyUpTo(1)]; !ok {
		t.Error("age 1 should be a member of up_to_1d")
	}
	if _, ok := set[keyUpTo(7)]; !ok {
		t.Error("age 1 should also be a member of up_to_7d")
	}
	if _, ok := set[keyFromTo(1, 7)]; ok {
		t.Error("age 1 should not be a member of from_1_to_7d (the lower bound is exclusive)")
	}
	if _, ok := set[keyVintage(2020)]; !ok {
		t.Error("should carry its vintage year")
	}
	if _, ok := set[keyShortTerm]; !ok {
		t.Error("age 1 should be a short-term holder")
	}
}

func TestMembershipSetLongTermHolder(t *testing.T) {
	set := MembershipSet(ShortTermHolderDays+1, 2020)
	if _, ok := set[keyLongTerm]; !ok {
		t.Fatal("age beyond ShortTermHolderDays should be long-term")
	}
	if _, ok := set[keyShortTerm]; ok {
		t.Fatal("age beyond ShortTermHolderDays should not be short-term")
	}
}

func TestAgeCohortsJoinInitialAndLeaveCurrent(t *testing.T) {
	a := NewAgeCohorts(2009, 2020)
	rec := &BlockRecord{Height: 100, Timestamp: 0, PriceAtBlock: 50, VintageYear: 2009}

	if err := a.JoinInitial(rec, 1_000_000, 2); err != nil {
		t.Fatalf("join initial: %v", err)
	}
	a.Register(rec)

	if a.UpTo[1].Supply != 1_000_000 {
		t.Fatalf("UpTo[1].Supply = %d, want 1000000", a.UpTo[1].Supply)
	}
	if a.Vintage[2009].Supply != 1_000_000 {
		t.Fatalf("Vintage[2009].Supply = %d, want 1000000", a.Vintage[2009].Supply)
	}

	if err := a.LeaveCurrent(rec, 0, 1_000_000, 2); err != nil {
		t.Fatalf("leave current: %v", err)
	}
	if a.UpTo[1].Supply != 0 {
		t.Fatalf("UpTo[1].Supply = %d, want 0 after leaving", a.UpTo[1].Supply)
	}
}

func TestAgeCohortsAdvanceTipCrossesBoundary(t *testing.T) {
	a := NewAgeCohorts(2009, 2020)
	rec := &BlockRecord{Height: 1, Timestamp: 0, PriceAtBlock: 50, VintageYear: 2009, AmountHeld: 1_000_000, SpendableOutputCount: 1}

	if err := a.JoinInitial(rec, 1_000_000, 1); err != nil {
		t.Fatalf("join initial: %v", err)
	}
	a.Register(rec)

	if a.UpTo[1].Supply != 1_000_000 {
		t.Fatalf("UpTo[1].Supply = %d before crossing, want 1000000", a.UpTo[1].Supply)
	}

	// Age past the up_to_1d boundary (trigger age 2 days).
	if err := a.AdvanceTip(uint32(2 * 86400)); err != nil {
		t.Fatalf("advance tip: %v", err)
	}
	if a.UpTo[1].Supply != 0 {
		t.Fatalf("UpTo[1].Supply = %d after crossing day 1, want 0", a.UpTo[1].Supply)
	}
	if a.UpTo[7].Supply != 1_000_000 {
		t.Fatalf("UpTo[7].Supply = %d, want 1000000 (still within 7 days)", a.UpTo[7].Supply)
	}
}

func TestAgeCohortsRebuildFromRecordReschedulesNextBoundary(t *testing.T) {
	a := NewAgeCohorts(2009, 2020)
	rec := &BlockRecord{Height: 1, Timestamp: 0, PriceAtBlock: 50, VintageYear: 2009, AmountHeld: 1_000_000, SpendableOutputCount: 1}

	if err := a.RebuildFromRecord(rec, uint32(5*86400)); err != nil {
		t.Fatalf("rebuild from record: %v", err)
	}

	// At age 5 days, up_to_1d no longer applies but up_to_7d still does.
	if a.UpTo[1].Supply != 0 {
		t.Fatalf("UpTo[1].Supply = %d, want 0 at age 5 days", a.UpTo[1].Supply)
	}
	if a.UpTo[7].Supply != 1_000_000 {
		t.Fatalf("UpTo[7].Supply = %d, want 1000000 at age 5 days", a.UpTo[7].Supply)
	}
	if a.events.Len() != 1 {
		t.Fatalf("events.Len() = %d, want 1 scheduled boundary crossing", a.events.Len())
	}
}

func TestAgeCohortsRebuildFromRecordZeroAmountIsNoop(t *testing.T) {
	a := NewAgeCohorts(2009, 2020)
	rec := &BlockRecord{Height: 1, Timestamp: 0, VintageYear: 2009, AmountHeld: 0}

	if err := a.RebuildFromRecord(rec, 1000); err != nil {
		t.Fatalf("rebuild from record: %v", err)
	}
	if a.events.Len() != 0 {
		t.Fatalf("events.Len() = %d, want 0 for a zero-amount record", a.events.Len())
	}
}
