package dataset

import "sort"

// Derived wraps a deterministically-recomputed (never incremental) output
// series over one or two base series: Cumulative, LastXSum,
// SimpleMovingAverage, NetChange, Median, Divide, Multiply, Add, Subtract.
// Recompute must be called again whenever a base value within the unsafe
// window changes.
type Derived struct {
	name      string
	out       *HeightMap[float64]
	recompute func() []float64
}

func (d *Derived) Name() string             { return d.name }
func (d *Derived) Series() *HeightMap[float64] { return d.out }
func (d *Derived) Len() uint32                 { return d.out.Len() }
func (d *Derived) At(h uint32) (float64, bool) { return d.out.At(h) }

// Recompute discards the series and rebuilds it in full from its base(s).
func (d *Derived) Recompute() {
	values := d.recompute()
	d.out.mu.Lock()
	d.out.values = values
	d.out.mu.Unlock()
}

func newDerived(name string, recompute func() []float64) *Derived {
	d := &Derived{name: name, out: NewHeightMap[float64](name), recompute: recompute}
	d.Recompute()
	return d
}

func NewCumulative(name string, base Float64Source) *Derived {
	return newDerived(name, func() []float64 {
		n := base.Len()
		out := make([]float64, n)
		var running float64
		for h := uint32(0); h < n; h++ {
			v, _ := base.At(h)
			running += v
			out[h] = running
		}
		return out
	})
}

func NewLastXSum(name string, base Float64Source, window int) *Derived {
	return newDerived(name, func() []float64 {
		n := base.Len()
		out := make([]float64, n)
		for h := uint32(0); h < n; h++ {
			out[h] = windowSum(base, h, window)
		}
		return out
	})
}

func NewSimpleMovingAverage(name string, base Float64Source, window int) *Derived {
	return newDerived(name, func() []float64 {
		n := base.Len()
		out := make([]float64, n)
		for h := uint32(0); h < n; h++ {
			count := window
			if int(h)+1 < window {
				count = int(h) + 1
			}
			if count == 0 {
				continue
			}
			out[h] = windowSum(base, h, window) / float64(count)
		}
		return out
	})
}

func NewNetChange(name string, base Float64Source, offset int) *Derived {
	return newDerived(name, func() []float64 {
		n := base.Len()
		out := make([]float64, n)
		for h := uint32(0); h < n; h++ {
			cur, _ := base.At(h)
			if int(h) < offset {
				continue
			}
			prev, _ := base.At(h - uint32(offset))
			out[h] = cur - prev
		}
		return out
	})
}

func NewMedian(name string, base Float64Source, window int) *Derived {
	return newDerived(name, func() []float64 {
		n := base.Len()
		out := make([]float64, n)
		buf := make([]float64, 0, window)
		for h := uint32(0); h < n; h++ {
			buf = buf[:0]
			start := int(h) - window + 1
			if start < 0 {
				start = 0
			}
			for i := start; i <= int(h); i++ {
				v, _ := base.At(uint32(i))
				buf = append(buf, v)
			}
			out[h] = median(buf)
		}
		return out
	})
}

func NewDivide(name string, a, b Float64Source) *Derived {
	return newDerived(name, func() []float64 { return elementwise(a, b, func(x, y float64) float64 {
		if y == 0 {
			return 0
		}
		return x / y
	}) })
}

func NewMultiply(name string, a, b Float64Source) *Derived {
	return newDerived(name, func() []float64 { return elementwise(a, b, func(x, y float64) float64 { return x * y }) })
}

func NewAdd(name string, a, b Float64Source) *Derived {
	return newDerived(name, func() []float64 { return elementwise(a, b, func(x, y float64) float64 { return x + y }) })
}

func NewSubtract(name string, a, b Float64Source) *Derived {
	return newDerived(name, func() []float64 { return elementwise(a, b, func(x, y float64) float64 { return x - y }) })
}

func windowSum(base Float64Source, h uint32, window int) float64 {
	start := int(h) - window + 1
	if start < 0 {
		start = 0
	}
	var sum float64
	for i := start; i <= int(h); i++ {
		v, _ := base.At(uint32(i))
		sum += v
	}
	return sum
}

func elementwise(a, b Float64Source, op func(x, y float64) float64) []float64 {
	n := a.Len()
	if b.Len() < n {
		n = b.Len()
	}
	out := make([]float64, n)
	for h := uint32(0); h < n; h++ {
		x, _ := a.At(h)
		y, _ := b.At(h)
		out[h] = op(x, y)
	}
	return out
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
