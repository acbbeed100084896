package observability

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

type CycleStats struct {
	Kind        string  `json:"kind"`
	Samples     int     `json:"samples"`
	LastMS      float64 `json:"last_ms"`
	AvgMS       float64 `json:"avg_ms"`
	P50MS       float64 `json:"p50_ms"`
	P95MS       float64 `json:"p95_ms"`
	P99MS       float64 `json:"p99_ms"`
	TargetP95MS float64 `json:"target_p95_ms,omitempty"`
}

type CycleIndicator struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type CycleSnapshot struct {
	GeneratedAt time.Time        `json:"generated_at"`
	WindowSize  int              `json:"window_size"`
	Cycles      []CycleStats     `json:"cycles"`
	Indicators  []CycleIndicator `json:"indicators,omitempty"`
}

// cycleWindow keeps a bounded ring of recent monitor cycle latencies per
// cycle kind, plus named incident counters (poll failures, abandoned
// tasks). It backs the local perf endpoint; Prometheus carries the
// long-term series.
type cycleWindow struct {
	mu         sync.RWMutex
	maxSamples int
	cycles     map[string]*cycleBuffer
	indicators map[string]int
}

type cycleBuffer struct {
	values []float64
	next   int
	filled bool
	last   float64
}

func newCycleWindow(maxSamples int) *cycleWindow {
	if maxSamples <= 0 {
		maxSamples = 256
	}
	return &cycleWindow{
		maxSamples: maxSamples,
		cycles:     make(map[string]*cycleBuffer),
		indicators: make(map[string]int),
	}
}

func (w *cycleWindow) Observe(kind string, ms float64) {
	if kind == "" || ms < 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	buf, ok := w.cycles[kind]
	if !ok {
		buf = &cycleBuffer{
			values: make([]float64, w.maxSamples),
		}
		w.cycles[kind] = buf
	}
	buf.values[buf.next] = ms
	buf.last = ms
	buf.next++
	if buf.next >= len(buf.values) {
		buf.next = 0
		buf.filled = true
	}
}

func (w *cycleWindow) ObserveIndicator(name string) {
	if w == nil {
		return
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.indicators[name]++
}

func (w *cycleWindow) Snapshot() CycleSnapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()

	cycles := make([]CycleStats, 0, len(w.cycles))
	keys := make([]string, 0, len(w.cycles))
	for kind := range w.cycles {
		keys = append(keys, kind)
	}
	sort.Strings(keys)

	for _, kind := range keys {
		buf := w.cycles[kind]
		if buf == nil {
			continue
		}
		n := buf.next
		if buf.filled {
			n = len(buf.values)
		}
		if n <= 0 {
			continue
		}
		samples := make([]float64, n)
		copy(samples, buf.values[:n])
		sort.Float64s(samples)

		sum := 0.0
		for _, v := range samples {
			sum += v
		}

		cycles = append(cycles, CycleStats{
			Kind:        kind,
			Samples:     n,
			LastMS:      round2(buf.last),
			AvgMS:       round2(sum / float64(n)),
			P50MS:       round2(quantile(samples, 0.50)),
			P95MS:       round2(quantile(samples, 0.95)),
			P99MS:       round2(quantile(samples, 0.99)),
			TargetP95MS: cycleTargetP95MS(kind),
		})
	}

	indicators := make([]CycleIndicator, 0, len(w.indicators))
	indicatorKeys := make([]string, 0, len(w.indicators))
	for name := range w.indicators {
		indicatorKeys = append(indicatorKeys, name)
	}
	sort.Strings(indicatorKeys)
	for _, name := range indicatorKeys {
		count := w.indicators[name]
		if count <= 0 {
			continue
		}
		indicators = append(indicators, CycleIndicator{
			Name:  name,
			Count: count,
		})
	}

	return CycleSnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  w.maxSamples,
		Cycles:      cycles,
		Indicators:  indicators,
	}
}

func (w *cycleWindow) Reset() {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cycles = make(map[string]*cycleBuffer)
	w.indicators = make(map[string]int)
}

func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	idx := q * float64(len(sorted)-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// A task poll talks to a local backend process; a messages consume does the
// same but is allowed a lazier budget since it runs far less often.
func cycleTargetP95MS(kind string) float64 {
	switch kind {
	case "tasks_poll":
		return 500
	case "messages_consume":
		return 1000
	default:
		return 0
	}
}
