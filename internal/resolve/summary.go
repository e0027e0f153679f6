package resolve

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/sells-group/microarea-cli/internal/model"
	"github.com/sells-group/microarea-cli/internal/store"
)

// ReviewItem is an address a human should look at.
type ReviewItem struct {
	Key    model.Key
	Method model.Method
	Note   string
}

// Summary aggregates results for the end-of-run report.
type Summary struct {
	Total        int
	ByMethod     map[model.Method]int
	ByConfidence map[model.Confidence]int
	// OutOfBounds counts provider answers rejected by the region check.
	OutOfBounds int
	Replaced    int
	Kept        int
	// Failed counts records the store refused; they are also on the
	// review list.
	Failed      int
	Review      []ReviewItem
	Interrupted bool
}

// NewSummary returns an empty summary.
func NewSummary() *Summary {
	return &Summary{
		ByMethod:     make(map[model.Method]int),
		ByConfidence: make(map[model.Confidence]int),
	}
}

// Add counts one result.
func (s *Summary) Add(rec model.AddressRecord, r model.ResolutionResult) {
	s.Total++
	s.ByMethod[r.Method]++
	s.ByConfidence[r.Confidence]++
	s.OutOfBounds += len(r.OutOfBoundsHits())
	if r.NeedsReview() {
		s.Review = append(s.Review, ReviewItem{Key: rec.Key(), Method: r.Method, Note: r.Note})
	}
}

// AddMerge records whether the store kept the new result.
func (s *Summary) AddMerge(out store.MergeOutcome) {
	if out.Replaced {
		s.Replaced++
	} else {
		s.Kept++
	}
}

// AddFailure records a result that could not be stored.
func (s *Summary) AddFailure(rec model.AddressRecord, r model.ResolutionResult, err error) {
	s.Failed++
	item := ReviewItem{Key: rec.Key(), Method: r.Method, Note: NoteStoreError + err.Error()}
	if n := len(s.Review); n > 0 && s.Review[n-1].Key == item.Key {
		s.Review[n-1] = item
		return
	}
	s.Review = append(s.Review, item)
}

// Resolved counts results that carry a coordinate.
func (s *Summary) Resolved() int {
	return s.Total - s.ByMethod[model.MethodManual]
}

// Stats converts the summary into the counters stored with a run.
func (s *Summary) Stats() store.RunStats {
	return store.RunStats{
		Total:    s.Total,
		Resolved: s.Resolved(),
		Manual:   s.ByMethod[model.MethodManual],
		Replaced: s.Replaced,
		Kept:     s.Kept,
		Failed:   s.Failed,
	}
}

// Summarize builds a summary from consolidated records.
func Summarize(recs []model.ConsolidatedRecord) *Summary {
	s := NewSummary()
	for _, r := range recs {
		s.Add(r.AddressRecord, r.Result)
	}
	return s
}

// Write renders the report: counts per method and confidence, then the
// manual review list.
func (s *Summary) Write(out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "TOTAL\t%d\n", s.Total)
	if s.Interrupted {
		_, _ = fmt.Fprintln(w, "STATUS\tinterrupted")
	}
	_, _ = fmt.Fprintln(w, "\nMETHOD\tCOUNT")
	_, _ = fmt.Fprintln(w, "------\t-----")
	for _, m := range model.Methods {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", m, s.ByMethod[m])
	}
	_, _ = fmt.Fprintln(w, "\nCONFIDENCE\tCOUNT")
	_, _ = fmt.Fprintln(w, "----------\t-----")
	for _, c := range model.Confidences {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", c, s.ByConfidence[c])
	}
	_, _ = fmt.Fprintf(w, "\nOUT OF BOUNDS HITS\t%d\n", s.OutOfBounds)
	if s.Replaced+s.Kept > 0 {
		_, _ = fmt.Fprintf(w, "REPLACED\t%d\nKEPT\t%d\n", s.Replaced, s.Kept)
	}
	if s.Failed > 0 {
		_, _ = fmt.Fprintf(w, "FAILED\t%d\n", s.Failed)
	}

	if len(s.Review) > 0 {
		_, _ = fmt.Fprintf(w, "\nMANUAL REVIEW (%d)\n", len(s.Review))
		_, _ = fmt.Fprintln(w, "UNIT\tMICRO AREA\tADDRESS\tMETHOD\tNOTE")
		for _, it := range s.Review {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", it.Key.Unit, it.Key.MicroArea, it.Key.Address, it.Method, it.Note)
		}
	}
	return w.Flush()
}
