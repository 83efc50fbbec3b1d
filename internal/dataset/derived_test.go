package dataset

import "testing"

func TestCumulative(t *testing.T) {
	base := NewHeightMap[float64]("base")
	for _, v := range []float64{1, 2, 3, 4} {
		_ = base.Insert(base.Len(), v)
	}
	d := NewCumulative("cumulative", AsFloat64Source(base))

	want := []float64{1, 3, 6, 10}
	for h, w := range want {
		v, ok := d.At(uint32(h))
		if !ok || v != w {
			t.Fatalf("At(%d) = %v, %v; want %v", h, v, ok, w)
		}
	}
}

func TestLastXSum(t *testing.T) {
	base := NewHeightMap[float64]("base")
	for _, v := range []float64{1, 1, 1, 1, 1} {
		_ = base.Insert(base.Len(), v)
	}
	d := NewLastXSum("sum3", AsFloat64Source(base), 3)

	want := []float64{1, 2, 3, 3, 3}
	for h, w := range want {
		v, _ := d.At(uint32(h))
		if v != w {
			t.Fatalf("At(%d) = %v; want %v", h, v, w)
		}
	}
}

func TestNetChange(t *testing.T) {
	base := NewHeightMap[float64]("base")
	for _, v := range []float64{10, 12, 11, 15} {
		_ = base.Insert(base.Len(), v)
	}
	d := NewNetChange("delta", AsFloat64Source(base), 1)

	want := []float64{0, 2, -1, 4}
	for h, w := range want {
		v, _ := d.At(uint32(h))
		if v != w {
			t.Fatalf("At(%d) = %v; want %v", h, v, w)
		}
	}
}

func TestDivideTruncatesToShorterSeries(t *testing.T) {
	a := NewHeightMap[float64]("a")
	_ = a.Insert(0, 10)
	_ = a.Insert(1, 20)
	_ = a.Insert(2, 30)

	b := NewHeightMap[float64]("b")
	_ = b.Insert(0, 2)
	_ = b.Insert(1, 4)

	d := NewDivide("ratio", AsFloat64Source(a), AsFloat64Source(b))
	if d.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 (truncated to shorter input)", d.Len())
	}
	v, _ := d.At(1)
	if v != 5 {
		t.Fatalf("At(1) = %v, want 5", v)
	}
}

func TestMedianOddAndEvenWindow(t *testing.T) {
	base := NewHeightMap[float64]("base")
	for _, v := range []float64{5, 1, 3, 9} {
		_ = base.Insert(base.Len(), v)
	}
	d := NewMedian("median3", AsFloat64Source(base), 3)

	v0, _ := d.At(0)
	if v0 != 5 {
		t.Fatalf("At(0) = %v, want 5 (window of 1)", v0)
	}
	v1, _ := d.At(1)
	if v1 != 3 {
		t.Fatalf("At(1) = %v, want 3 (median of 5,1 averages the middle pair)", v1)
	}
	v2, _ := d.At(2)
	if v2 != 3 {
		t.Fatalf("At(2) = %v, want 3 (median of 5,1,3)", v2)
	}
}

func TestRecomputeReflectsNewBaseValues(t *testing.T) {
	base := NewHeightMap[float64]("base")
	_ = base.Insert(0, 1)
	d := NewCumulative("cum", AsFloat64Source(base))

	v, _ := d.At(0)
	if v != 1 {
		t.Fatalf("At(0) = %v, want 1", v)
	}

	_ = base.Insert(1, 4)
	d.Recompute()

	v, _ = d.At(1)
	if v != 5 {
		t.Fatalf("At(1) after recompute = %v, want 5", v)
	}
}
