// Package cube accumulates normalized records and assembles batches of
// them into store segments with a schema unified across the granule format
// generations.
package cube

import (
	"fmt"
	"math"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"

	"github.com/icefield/velocube/internal/granule"
	"github.com/icefield/velocube/internal/logging"
)

var accLog = logging.Component("accumulator")

// sketchAccuracy is the relative accuracy of the velocity distribution
// sketch reported in the run summary.
const sketchAccuracy = 0.01

// Accumulator buffers accepted records pending assembly as three parallel
// sequences in acceptance order, and tracks the run-wide rejection lists,
// which survive Clear until the run ends.
type Accumulator struct {
	dates   []time.Time
	records []*granule.Record
	urls    []string

	skippedEmpty  []string
	skippedDouble []string
	skippedProj   map[int][]string

	totalExamined int
	accepted      int

	// sketch approximates the distribution of valid velocity magnitudes
	// across the whole run.
	sketch *ddsketch.DDSketch
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	sketch, err := ddsketch.NewDefaultDDSketch(sketchAccuracy)
	if err != nil {
		// The accuracy constant is valid; this cannot happen.
		panic(err)
	}
	return &Accumulator{
		skippedProj: make(map[int][]string),
		sketch:      sketch,
	}
}

// Add classifies one normalization result: accepted records join the
// pending batch, rejections join the run-wide lists.
func (a *Accumulator) Add(res *granule.Result) {
	a.totalExamined++

	if res.Record != nil {
		a.dates = append(a.dates, res.MidDate)
		a.records = append(a.records, res.Record)
		a.urls = append(a.urls, res.URL)
		a.accepted++
		a.observeVelocity(res.Record)
		return
	}

	if res.Empty {
		a.skippedEmpty = append(a.skippedEmpty, res.URL)
		accLog.Debug("granule rejected", "reason", "empty", "url", res.URL)
		return
	}

	a.skippedProj[res.EPSG] = append(a.skippedProj[res.EPSG], res.URL)
	accLog.Debug("granule rejected",
		"reason", "wrong projection", "epsg", res.EPSG, "url", res.URL)
}

// AddDuplicates records the identifiers the deduplicator discarded.
func (a *Accumulator) AddDuplicates(urls []string) {
	a.skippedDouble = append(a.skippedDouble, urls...)
}

// Size returns the number of records pending assembly.
func (a *Accumulator) Size() int {
	return len(a.records)
}

// Accepted returns the number of records accepted across the whole run.
func (a *Accumulator) Accepted() int {
	return a.accepted
}

// Batch exposes the pending records and their dates, in acceptance order.
// The accumulator retains ownership until Clear.
func (a *Accumulator) Batch() ([]*granule.Record, []time.Time, []string) {
	return a.records, a.dates, a.urls
}

// Clear drops the three pending sequences. Each record may hold tens of
// megabytes of cropped arrays, so the batch must be released as soon as it
// is persisted. Rejection lists are kept for the run summary.
func (a *Accumulator) Clear() {
	a.dates = nil
	a.records = nil
	a.urls = nil
}

// Rejections returns the run-wide rejection lists: empty-region URLs,
// duplicate-superseded URLs, and wrong-projection URLs keyed by the
// detected projection code.
func (a *Accumulator) Rejections() (empty, duplicate []string, wrongProj map[string][]string) {
	proj := make(map[string][]string, len(a.skippedProj))
	for code, urls := range a.skippedProj {
		proj[fmt.Sprintf("%d", code)] = urls
	}
	return a.skippedEmpty, a.skippedDouble, proj
}

// observeVelocity feeds the valid cells of the record's velocity magnitude
// into the run-wide distribution sketch.
func (a *Accumulator) observeVelocity(rec *granule.Record) {
	v, ok := rec.Grids[granule.VarV]
	if !ok {
		return
	}
	for _, cell := range v.Data {
		f := float64(cell)
		if math.IsNaN(f) || f < 0 {
			continue
		}
		// Add only fails for non-finite values, excluded above.
		_ = a.sketch.Add(f)
	}
}

// Quantile returns the approximate q-quantile of the valid velocity
// magnitudes seen so far, and false while no cell has been observed.
func (a *Accumulator) Quantile(q float64) (float64, bool) {
	if a.sketch.GetCount() == 0 {
		return 0, false
	}
	v, err := a.sketch.GetValueAtQuantile(q)
	if err != nil {
		return 0, false
	}
	return v, true
}

// LogStats writes the percentage-based run summary.
func (a *Accumulator) LogStats() {
	total := a.totalExamined + len(a.skippedDouble)
	if total == 0 {
		accLog.Info("no granules examined")
		return
	}

	pct := func(n int) float64 { return 100.0 * float64(n) / float64(total) }

	wrongProj := 0
	for _, urls := range a.skippedProj {
		wrongProj += len(urls)
	}

	accLog.Info("run summary",
		"candidates", total,
		"accepted", a.accepted,
		"accepted_pct", pct(a.accepted),
		"skipped_empty", len(a.skippedEmpty),
		"skipped_empty_pct", pct(len(a.skippedEmpty)),
		"skipped_duplicate", len(a.skippedDouble),
		"skipped_duplicate_pct", pct(len(a.skippedDouble)),
		"skipped_wrong_projection", wrongProj,
		"skipped_wrong_projection_pct", pct(wrongProj),
	)

	if p50, ok := a.Quantile(0.5); ok {
		p90, _ := a.Quantile(0.9)
		p99, _ := a.Quantile(0.99)
		accLog.Info("velocity distribution",
			"cells", int64(a.sketch.GetCount()),
			"p50", p50, "p90", p90, "p99", p99)
	}
}
