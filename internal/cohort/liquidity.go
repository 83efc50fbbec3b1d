package cohort

import "math"

// epsilonF32 is the f32 machine epsilon (2^-23), used verbatim by the
// logistic liquidity-split curve below. Keeping the named constant (rather
// than inlining it) documents that this exact value — not an arbitrary
// small number — is part of the split's definition.
const epsilonF32 = 1.1920929e-7

// LiquidityClassification splits a single address's holdings across the
// illiquid/liquid/highly-liquid tranches from its lifetime sent/received
// ratio, via a logistic curve.
type LiquidityClassification struct {
	Illiquid     float64
	Liquid       float64
	HighlyLiquid float64
}

func ClassifyLiquidity(sentSats, receivedSats uint64) LiquidityClassification {
	r := 0.0
	if receivedSats > 0 {
		r = float64(sentSats) / float64(receivedSats)
	}

	illiquid := 1 - liquidityRatio(r, 0.25)
	highlyLiquid := liquidityRatio(r, 0.75)

	return LiquidityClassification{
		Illiquid:     illiquid,
		Liquid:       1 - illiquid - highlyLiquid,
		HighlyLiquid: highlyLiquid,
	}
}

func liquidityRatio(r, x0 float64) float64 {
	return 1 / (1 + math.Pow(epsilonF32, 25*(r-x0)))
}

// SplitAmount divides amount sats across the three tranches. The
// highly-liquid share absorbs the rounding remainder so the three parts
// always sum back to amount exactly, preserving the histogram-sum
// invariant.
func (c LiquidityClassification) SplitAmount(amount uint64) (illiquid, liquid, highlyLiquid uint64) {
	illiquid = uint64(math.Round(float64(amount) * c.Illiquid))
	liquid = uint64(math.Round(float64(amount) * c.Liquid))
	if illiquid+liquid > amount {
		liquid = amount - illiquid
	}
	highlyLiquid = amount - illiquid - liquid
	return
}

// SplitCount divides a UTXO count the same way, independently of
// SplitAmount: each rounds its own remainder into the highly-liquid share.
func (c LiquidityClassification) SplitCount(count uint32) (illiquid, liquid, highlyLiquid uint32) {
	illiquid = uint32(math.Round(float64(count) * c.Illiquid))
	liquid = uint32(math.Round(float64(count) * c.Liquid))
	if illiquid+liquid > count {
		liquid = count - illiquid
	}
	highlyLiquid = count - illiquid - liquid
	return
}
