package timeseries

import "fmt"

// Source names the upstream series a record came from.
type Source string

const (
	SourceHistory    Source = "history"
	SourceForecast   Source = "forecast"
	SourcePrediction Source = "prediction"
)

// Skip describes one input record dropped because its timestamp could not be parsed.
type Skip struct {
	Source Source
	Index  int
	Raw    string
	Err    error
}

func (s Skip) String() string {
	return fmt.Sprintf("%s[%d] %q: %v", s.Source, s.Index, s.Raw, s.Err)
}

// Report collects the non-fatal conditions met during a merge or alignment.
// Unmatched counts prediction keys with no slot in the series.
type Report struct {
	Skipped   []Skip
	Unmatched int
}

func (r *Report) skip(src Source, index int, raw string, err error) {
	r.Skipped = append(r.Skipped, Skip{Source: src, Index: index, Raw: raw, Err: err})
}

// SkippedBy returns how many records from src were skipped.
func (r Report) SkippedBy(src Source) int {
	n := 0
	for _, s := range r.Skipped {
		if s.Source == src {
			n++
		}
	}
	return n
}

// Merge appends other's findings to r.
func (r *Report) Merge(other Report) {
	r.Skipped = append(r.Skipped, other.Skipped...)
	r.Unmatched += other.Unmatched
}
