package filtering

import (
	"context"
	"fmt"

	"github.com/spigell/worky/internal/jobs"
)

type minimumMatchFilter struct {
	enabled bool
	reason  string
	minimum float64
}

// NewMinimumMatch drops listings whose match percentage is below minimum.
// A zero minimum disables the filter.
func NewMinimumMatch(minimum float64) Filter {
	f := &minimumMatchFilter{enabled: true, minimum: minimum}
	if minimum <= 0 {
		f.Disable("no minimum configured")
	}
	return f
}

func (f *minimumMatchFilter) Name() string { return "minimum_match" }

func (f *minimumMatchFilter) Disable(reason string) {
	f.enabled = false
	f.reason = reason
}

func (f *minimumMatchFilter) IsEnabled() bool { return f.enabled }

func (f *minimumMatchFilter) Validate() error {
	if f.minimum > 100 {
		return fmt.Errorf("minimum match %.1f is above 100", f.minimum)
	}
	return nil
}

func (f *minimumMatchFilter) Apply(_ context.Context, l *jobs.Listings) (*jobs.Listings, Step, error) {
	initial := l.Len()
	removed := l.RemoveFunc(func(listing *jobs.Listing) bool { return listing.Match < f.minimum })
	return l, Step{Initial: initial, Dropped: len(removed), Left: l.Len()}, nil
}

func (f *minimumMatchFilter) Status() Status {
	return Status{
		Name:    f.Name(),
		Enabled: f.enabled,
		Reason:  f.reason,
		Details: map[string]string{"minimum": fmt.Sprintf("%.1f", f.minimum)},
	}
}
