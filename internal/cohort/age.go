package cohort

import (
	"container/heap"
	"fmt"
	"sort"
)

// UpToDaysTiers and FromToDaysTiers are the UTXO-age bucket boundaries.
var UpToDaysTiers = []int{1, 7, 30, 60, 90, 120, 150, 180, 365, 730, 1095, 1825, 2555, 3650}

var FromToDaysTiers = [][2]int{
	{1, 7}, {7, 30}, {30, 90}, {90, 180}, {180, 365}, {365, 730},
	{730, 1095}, {1095, 1825}, {1825, 2555}, {2555, 3650},
}

const ShortTermHolderDays = 155

// BlockRecord is the canonical per-processed-block record (one per block,
// retained for the life of its outputs). It is defined here rather than in
// the state package so the age-cohort scheduler can operate on it directly
// without state importing cohort and cohort importing state back.
type BlockRecord struct {
	Height               uint32
	DateIndex            uint16
	Timestamp            uint32
	PriceAtBlock         float64
	AmountHeld           uint64
	SpendableOutputCount uint32
	VintageYear          int

	nextTriggerIdx int
}

// DecrementSpend removes a spent output's contribution from this block's
// running totals. Callers are responsible for calling LeaveCurrent (or the
// scheduler event already covers it) to keep age-cohort histograms in sync
// before the amount here changes.
func (b *BlockRecord) DecrementSpend(sats uint64) {
	b.AmountHeld -= sats
	b.SpendableOutputCount--
}

func AgeInDays(tipTimestamp, blockTimestamp uint32) int {
	if tipTimestamp < blockTimestamp {
		return 0
	}
	return int((tipTimestamp - blockTimestamp) / 86400)
}

func keyUpTo(d int) string        { return fmt.Sprintf("upto:%d", d) }
func keyFromTo(a, b int) string   { return fmt.Sprintf("fromto:%d:%d", a, b) }
func keyVintage(year int) string  { return fmt.Sprintf("vintage:%d", year) }

const keyShortTerm = "term:short"
const keyLongTerm = "term:long"

// MembershipSet returns the full set of age-cohort keys a block at ageDays
// with the given vintage year currently belongs to.
func MembershipSet(ageDays, vintageYear int) map[string]struct{} {
	set := make(map[string]struct{}, len(UpToDaysTiers)+len(FromToDaysTiers)+2)
	for _, t := range UpToDaysTiers {
		if ageDays <= t {
			set[keyUpTo(t)] = struct{}{}
		}
	}
	for _, ft := range FromToDaysTiers {
		if ageDays > ft[0] && ageDays <= ft[1] {
			set[keyFromTo(ft[0], ft[1])] = struct{}{}
		}
	}
	set[keyVintage(vintageYear)] = struct{}{}
	if ageDays <= ShortTermHolderDays {
		set[keyShortTerm] = struct{}{}
	} else {
		set[keyLongTerm] = struct{}{}
	}
	return set
}

// triggerAges is the sorted, deduplicated list of ages (in days) at which
// some block's age-cohort membership can change. It is the same for every
// block, so the scheduler below shares one copy instead of recomputing it
// per record.
var triggerAges = buildTriggerAges()

func buildTriggerAges() []int {
	set := make(map[int]struct{})
	for _, t := range UpToDaysTiers {
		set[t+1] = struct{}{}
	}
	for _, ft := range FromToDaysTiers {
		set[ft[0]+1] = struct{}{}
		set[ft[1]+1] = struct{}{}
	}
	set[ShortTermHolderDays+1] = struct{}{}

	out := make([]int, 0, len(set))
	for a := range set {
		out = append(out, a)
	}
	sort.Ints(out)
	return out
}

// AgeCohorts owns every UTXO-age/vintage histogram plus the min-heap of
// pending boundary-crossing events that keeps membership current as the
// tip timestamp advances, without rescanning every BlockRecord on every
// block (a differential membership rule).
type AgeCohorts struct {
	byKey map[string]*Histogram

	UpTo      map[int]*Histogram
	FromTo    map[[2]int]*Histogram
	Vintage   map[int]*Histogram
	ShortTerm *Histogram
	LongTerm  *Histogram

	events ageEventQueue
}

func NewAgeCohorts(vintageYearsFrom, vintageYearsTo int) *AgeCohorts {
	a := &AgeCohorts{
		byKey:     make(map[string]*Histogram),
		UpTo:      make(map[int]*Histogram, len(UpToDaysTiers)),
		FromTo:    make(map[[2]int]*Histogram, len(FromToDaysTiers)),
		Vintage:   make(map[int]*Histogram),
		ShortTerm: NewHistogram(),
		LongTerm:  NewHistogram(),
	}
	for _, t := range UpToDaysTiers {
		h := NewHistogram()
		a.UpTo[t] = h
		a.byKey[keyUpTo(t)] = h
	}
	for _, ft := range FromToDaysTiers {
		h := NewHistogram()
		a.FromTo[ft] = h
		a.byKey[keyFromTo(ft[0], ft[1])] = h
	}
	for y := vintageYearsFrom; y <= vintageYearsTo; y++ {
		h := NewHistogram()
		a.Vintage[y] = h
		a.byKey[keyVintage(y)] = h
	}
	a.byKey[keyShortTerm] = a.ShortTerm
	a.byKey[keyLongTerm] = a.LongTerm
	return a
}

// ApplyMembershipDiff decrements old-only cohorts and increments new-only
// cohorts; cohorts present in both sets are left untouched.
func (a *AgeCohorts) ApplyMembershipDiff(old, new_ map[string]struct{}, amount uint64, utxos uint32, price float64) error {
	for k := range old {
		if _, ok := new_[k]; ok {
			continue
		}
		h, ok := a.byKey[k]
		if !ok {
			continue
		}
		if err := h.Decrement(amount, utxos, price); err != nil {
			return fmt.Errorf("cohort: age cohort %s: %w", k, err)
		}
	}
	for k := range new_ {
		if _, ok := old[k]; ok {
			continue
		}
		if h, ok := a.byKey[k]; ok {
			h.Increment(amount, utxos, price)
		}
	}
	return nil
}

// JoinInitial applies a block's very first membership (on creation, at
// age 0) — a pure join from the empty set.
func (a *AgeCohorts) JoinInitial(rec *BlockRecord, amount uint64, utxos uint32) error {
	set := MembershipSet(0, rec.VintageYear)
	return a.ApplyMembershipDiff(nil, set, amount, utxos, rec.PriceAtBlock)
}

// LeaveCurrent removes amount/utxos from every cohort rec currently
// belongs to at tipTimestamp — used when an output of rec is spent.
func (a *AgeCohorts) LeaveCurrent(rec *BlockRecord, tipTimestamp uint32, amount uint64, utxos uint32) error {
	age := AgeInDays(tipTimestamp, rec.Timestamp)
	set := MembershipSet(age, rec.VintageYear)
	return a.ApplyMembershipDiff(set, nil, amount, utxos, rec.PriceAtBlock)
}

// --- boundary-crossing event scheduler ---

type ageEvent struct {
	dueTimestamp uint32
	triggerAge   int
	record       *BlockRecord
}

type ageEventQueue []*ageEvent

func (q ageEventQueue) Len() int            { return len(q) }
func (q ageEventQueue) Less(i, j int) bool  { return q[i].dueTimestamp < q[j].dueTimestamp }
func (q ageEventQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *ageEventQueue) Push(x interface{}) { *q = append(*q, x.(*ageEvent)) }
func (q *ageEventQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// RebuildFromRecord restores rec's contribution to every age/vintage
// histogram and reschedules its next boundary crossing, given the tip
// timestamp the run is resuming at. Used once per still-outstanding
// BlockRecord on driver resume, since histogram state itself is never
// checkpointed (only the BlockRecords it is derived from are).
func (a *AgeCohorts) RebuildFromRecord(rec *BlockRecord, tipTimestamp uint32) error {
	if rec.AmountHeld == 0 {
		return nil
	}
	ageDays := AgeInDays(tipTimestamp, rec.Timestamp)
	set := MembershipSet(ageDays, rec.VintageYear)
	if err := a.ApplyMembershipDiff(nil, set, rec.AmountHeld, rec.SpendableOutputCount, rec.PriceAtBlock); err != nil {
		return err
	}

	idx := sort.SearchInts(triggerAges, ageDays+1)
	rec.nextTriggerIdx = idx
	if idx < len(triggerAges) {
		heap.Push(&a.events, &ageEvent{
			dueTimestamp: rec.Timestamp + uint32(triggerAges[idx]*86400),
			triggerAge:   triggerAges[idx],
			record:       rec,
		})
	}
	return nil
}

// Register schedules rec's first boundary-crossing event. Call once, right
// after JoinInitial.
func (a *AgeCohorts) Register(rec *BlockRecord) {
	if len(triggerAges) == 0 {
		return
	}
	rec.nextTriggerIdx = 0
	heap.Push(&a.events, &ageEvent{
		dueTimestamp: rec.Timestamp + uint32(triggerAges[0]*86400),
		triggerAge:   triggerAges[0],
		record:       rec,
	})
}

// AdvanceTip processes every pending boundary crossing due at or before
// tipTimestamp, in timestamp order, and reschedules each record's next
// crossing.
func (a *AgeCohorts) AdvanceTip(tipTimestamp uint32) error {
	for a.events.Len() > 0 && a.events[0].dueTimestamp <= tipTimestamp {
		ev := heap.Pop(&a.events).(*ageEvent)
		rec := ev.record

		oldSet := MembershipSet(ev.triggerAge-1, rec.VintageYear)
		newSet := MembershipSet(ev.triggerAge, rec.VintageYear)
		if err := a.ApplyMembershipDiff(oldSet, newSet, rec.AmountHeld, rec.SpendableOutputCount, rec.PriceAtBlock); err != nil {
			return err
		}

		rec.nextTriggerIdx++
		if rec.nextTriggerIdx < len(triggerAges) {
			next := triggerAges[rec.nextTriggerIdx]
			heap.Push(&a.events, &ageEvent{
				dueTimestamp: rec.Timestamp + uint32(next*86400),
				triggerAge:   next,
				record:       rec,
			})
		}
	}
	return nil
}
