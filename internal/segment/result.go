package segment

import (
	"fmt"
	"strings"
)

// Result is the outcome of one plan, written exactly once by the worker
// that owns the index.
type Result struct {
	Index     int
	OutputKey string
	Err       error
}

// AggregateError reports every failed segment of a run. A single failed
// segment voids the whole result set: downstream transcript reassembly
// needs a complete, contiguous segment sequence.
type AggregateError struct {
	Total    int
	Failures []Result
}

func (e *AggregateError) Error() string {
	msgs := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		msgs = append(msgs, fmt.Sprintf("segment %d: %v", f.Index, f.Err))
	}
	return fmt.Sprintf("%d of %d segments failed: %s",
		len(e.Failures), e.Total, strings.Join(msgs, "; "))
}

// Aggregate enforces the all-or-nothing contract. Results must be in
// index order, as the pool produces them. If every plan succeeded the
// output keys come back in that order; otherwise the run fails with an
// AggregateError naming each failed index and no keys at all.
func Aggregate(results []Result) ([]string, error) {
	var failures []Result
	for _, r := range results {
		if r.Err != nil {
			failures = append(failures, r)
		}
	}
	if len(failures) > 0 {
		return nil, &AggregateError{Total: len(results), Failures: failures}
	}

	keys := make([]string, 0, len(results))
	for _, r := range results {
		keys = append(keys, r.OutputKey)
	}
	return keys, nil
}
