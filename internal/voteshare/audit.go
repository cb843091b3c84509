package voteshare

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// AuditEntry records how one number was produced.
type AuditEntry struct {
	Label        string            `json:"label"`
	Operation    string            `json:"operation"`
	Reference    time.Time         `json:"reference_date"`
	Window       TimeWindow        `json:"window"`
	Filter       string            `json:"filter"`
	Records      int               `json:"records"`
	Selection    *Selection        `json:"selection,omitempty"`
	Column       string            `json:"weight_column"`
	Result       *VoteShareResult  `json:"result,omitempty"`
	Matrix       *TransitionMatrix `json:"matrix,omitempty"`
	Distribution *CodeDistribution `json:"distribution,omitempty"`
	Err          string            `json:"error,omitempty"`
}

// Auditor receives an entry for every computation the Calculator performs.
type Auditor interface {
	Record(ctx context.Context, e AuditEntry)
}

// Trail is an in-memory Auditor that renders a plain-text narrative.
type Trail struct {
	mu      sync.Mutex
	entries []AuditEntry
}

// NewTrail creates an empty trail.
func NewTrail() *Trail {
	return &Trail{}
}

// Record appends e.
func (t *Trail) Record(_ context.Context, e AuditEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, e)
}

// Entries returns a copy of the recorded entries.
func (t *Trail) Entries() []AuditEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]AuditEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// WriteTo renders every entry.
func (t *Trail) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	for i, e := range t.Entries() {
		fmt.Fprintf(&b, "%s\n", strings.Repeat("=", 80))
		fmt.Fprintf(&b, "#%d %s (%s)\n", i+1, e.Label, e.Operation)
		fmt.Fprintf(&b, "  Reference date: %s\n", e.Reference.Format(dateLayout))
		fmt.Fprintf(&b, "  Window:         %s\n", e.Window)
		fmt.Fprintf(&b, "  Filter:         %s\n", e.Filter)
		fmt.Fprintf(&b, "  Records:        %d\n", e.Records)
		if s := e.Selection; s != nil {
			fmt.Fprintf(&b, "  Requested:      %s\n", s.Requested)
			fmt.Fprintf(&b, "  Availability:   %d/%d = %.4f (threshold %.2f)\n",
				s.Available, s.Total, s.AvailabilityRatio, AvailabilityThreshold)
			if s.FellBack {
				fmt.Fprintf(&b, "  Fallback:       period weight too sparse, overall weight used\n")
			}
		}
		fmt.Fprintf(&b, "  Weight column:  %s\n", e.Column)
		if e.Err != "" {
			fmt.Fprintf(&b, "  Error:          %s\n", e.Err)
			continue
		}
		if r := e.Result; r != nil {
			writeResult(&b, *r)
		}
		if m := e.Matrix; m != nil {
			writeMatrix(&b, *m)
		}
		if d := e.Distribution; d != nil {
			fmt.Fprintf(&b, "  Sample: %d  Total weight: %.4f\n", d.SampleSize, d.TotalWeight)
			for _, c := range d.Codes() {
				fmt.Fprintf(&b, "    code %-4d %6.2f%%\n", c, d.Percentages[c])
			}
		}
	}
	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

func writeResult(b *strings.Builder, r VoteShareResult) {
	fmt.Fprintf(b, "  Sample: %d  Weighted base: %d  Total weight: %.4f", r.SampleSize, r.WeightedBase, r.TotalWeight)
	if r.RawFallback {
		b.WriteString("  (unweighted fallback)")
	}
	b.WriteString("\n")
	for _, c := range Categories() {
		fmt.Fprintf(b, "    %-7s %6.2f%%\n", c, r.Percentages[c])
	}
	fmt.Fprintf(b, "    %-7s %6.2f\n", "Margin", r.Margin())
}

func writeMatrix(b *strings.Builder, m TransitionMatrix) {
	fmt.Fprintf(b, "  Base sample: %d\n", m.BaseSample)
	b.WriteString("    row\\col")
	for _, c := range Categories() {
		fmt.Fprintf(b, " %7s", c)
	}
	b.WriteString("\n")
	for _, r := range Categories() {
		fmt.Fprintf(b, "    %-7s", r)
		for _, c := range Categories() {
			fmt.Fprintf(b, " %7s", m.Cell(r, c))
		}
		fmt.Fprintf(b, "  (n=%d)\n", m.Rows[r].SampleSize)
	}
	fmt.Fprintf(b, "    %-7s", "Total")
	for _, c := range Categories() {
		fmt.Fprintf(b, " %7.1f", m.Totals.Percentages[c])
	}
	b.WriteString("\n")
}
