// Package recorder consumes events admitted by the syscall filter. It
// keeps wait-free per-syscall counters on the dispatch path and can
// report them as aggregate stats or CSV after a run.
package recorder

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/sctrace/sctrace/filter"
	"github.com/sctrace/sctrace/syscalls"
)

// Recorder implements filter.Sink. Record is called from the syscall
// hot path: it only bumps atomic counters, never logs or blocks.
type Recorder struct {
	logger  *zap.SugaredLogger
	catalog *syscalls.Catalog

	counts   [syscalls.NumVariants][]atomic.Uint64
	unknown  [syscalls.NumVariants]atomic.Uint64
	admitted atomic.Uint64
}

func New(logger *zap.SugaredLogger, catalog *syscalls.Catalog) *Recorder {
	r := &Recorder{
		logger:  logger,
		catalog: catalog,
	}

	for v := syscalls.Variant(0); v < syscalls.NumVariants; v++ {
		r.counts[v] = make([]atomic.Uint64, catalog.Len(v))
	}

	return r
}

// Record counts one admitted event.
func (r *Recorder) Record(ev *filter.Event, nr int) {
	r.admitted.Add(1)

	if ev.Unknown() {
		r.unknown[ev.Variant].Add(1)
		return
	}

	r.counts[ev.Variant][nr].Add(1)
}

// Stats aggregates what the recorder has seen so far.
type Stats struct {
	Admitted   uint64
	Unknown    uint64
	PerVariant [syscalls.NumVariants]uint64
}

func (r *Recorder) Stats() *Stats {
	s := &Stats{Admitted: r.admitted.Load()}

	for v := syscalls.Variant(0); v < syscalls.NumVariants; v++ {
		s.Unknown += r.unknown[v].Load()
		s.PerVariant[v] += r.unknown[v].Load()

		for nr := range r.counts[v] {
			s.PerVariant[v] += r.counts[v][nr].Load()
		}
	}

	return s
}

// WriteCSV dumps non-zero per-syscall counters, one row per
// (variant, syscall).
func (r *Recorder) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)

	if err := cw.Write([]string{"variant", "nr", "name", "count"}); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	for v := syscalls.Variant(0); v < syscalls.NumVariants; v++ {
		table := r.catalog.Table(v)

		for nr := range r.counts[v] {
			n := r.counts[v][nr].Load()
			if n == 0 {
				continue
			}

			row := []string{
				v.String(),
				strconv.Itoa(nr),
				table[nr].Name,
				strconv.FormatUint(n, 10),
			}

			if err := cw.Write(row); err != nil {
				return fmt.Errorf("failed to write csv row: %w", err)
			}
		}

		if n := r.unknown[v].Load(); n != 0 {
			row := []string{v.String(), "-1", syscalls.UnknownName, strconv.FormatUint(n, 10)}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("failed to write csv row: %w", err)
			}
		}
	}

	cw.Flush()

	return cw.Error()
}

// LogStats reports aggregate counters through the logger, the way a
// verbose run summarizes itself on shutdown.
func (r *Recorder) LogStats() {
	s := r.Stats()

	r.logger.Infow("recorder stats",
		"admitted", s.Admitted,
		"unknown", s.Unknown,
		"native-entry", s.PerVariant[syscalls.NativeEntry],
		"native-exit", s.PerVariant[syscalls.NativeExit],
		"compat-entry", s.PerVariant[syscalls.CompatEntry],
		"compat-exit", s.PerVariant[syscalls.CompatExit],
	)
}

// Nop discards every event; useful when only the filtering itself is
// being exercised.
type Nop struct{}

func (Nop) Record(*filter.Event, int) {}
