package cohort

import "testing"

func TestClassifyLiquidityExtremes(t *testing.T) {
	never := ClassifyLiquidity(0, 1000)
	if never.Illiquid < 0.99 {
		t.Fatalf("an address that never sends should classify almost entirely illiquid, got %+v", never)
	}

	always := ClassifyLiquidity(1000, 1000)
	if always.HighlyLiquid < 0.99 {
		t.Fatalf("an address that sends everything it receives should classify almost entirely highly liquid, got %+v", always)
	}
}

func TestClassifyLiquidityProportionsSumToOne(t *testing.T) {
	c := ClassifyLiquidity(300, 1000)
	sum := c.Illiquid + c.Liquid + c.HighlyLiquid
	if sum < 0.999 || sum > 1.001 {
		t.Fatalf("Illiquid+Liquid+HighlyLiquid = %v, want ~1", sum)
	}
}

func TestSplitAmountSumsExactly(t *testing.T) {
	c := ClassifyLiquidity(300, 1000)
	illiquid, liquid, highly := c.SplitAmount(987654321)
	if illiquid+liquid+highly != 987654321 {
		t.Fatalf("split parts %d+%d+%d != 987654321", illiquid, liquid, highly)
	}
}

func TestSplitCountSumsExactly(t *testing.T) {
	c := ClassifyLiquidity(700, 1000)
	illiquid, liquid, highly := c.SplitCount(17)
	if illiquid+liquid+highly != 17 {
		t.Fatalf("split parts %d+%d+%d != 17", illiquid, liquid, highly)
	}
}

func TestSplitAmountZero(t *testing.T) {
	c := ClassifyLiquidity(0, 0)
	illiquid, liquid, highly := c.SplitAmount(0)
	if illiquid != 0 || liquid != 0 || highly != 0 {
		t.Fatalf("splitting 0 should yield all zeros, got %d, %d, %d", illiquid, liquid, highly)
	}
}
