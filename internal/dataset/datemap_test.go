package dataset

import "testing"

func TestDateMapInsertOrder(t *testing.T) {
	m := NewDateMap[float64]("date/close")
	if err := m.Insert(0, 100); err != nil {
		t.Fatalf("insert 0: %v", err)
	}
	if err := m.Insert(1, 200); err != nil {
		t.Fatalf("insert 1: %v", err)
	}
	if err := m.Insert(3, 400); err == nil {
		t.Fatal("expected error inserting out of order")
	}

	v, ok := m.At(1)
	if !ok || v != 200 {
		t.Fatalf("At(1) = %v, %v; want 200, true", v, ok)
	}
	if m.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", m.Len())
	}
}

func TestDateMapIsSafe(t *testing.T) {
	m := NewDateMap[float64]("date/close")
	if !m.IsSafe(50, 150) {
		t.Fatal("lastHeightOfDate 50 should be safe at tip 150 (150-50=100)")
	}
	if m.IsSafe(51, 150) {
		t.Fatal("lastHeightOfDate 51 should be unsafe at tip 150")
	}
}

func TestDateMapPendingAndMarkFlushed(t *testing.T) {
	m := NewDateMap[float64]("date/close")
	for d := uint16(0); d < 4; d++ {
		_ = m.Insert(d, float64(d))
	}
	start, values := m.Pending()
	if start != 0 || len(values) != 4 {
		t.Fatalf("Pending() = %d, %v", start, values)
	}
	m.MarkFlushed(2)

	start, values = m.Pending()
	if start != 2 || len(values) != 2 {
		t.Fatalf("Pending() after flush = %d, %v; want start 2, len 2", start, values)
	}
}
