package filtering

import (
	"context"
	"strings"

	"github.com/spigell/worky/internal/jobs"
)

type duplicateLinksFilter struct {
	enabled bool
	reason  string
}

// NewDuplicateLinks keeps only the first listing for each application link.
func NewDuplicateLinks() Filter {
	return &duplicateLinksFilter{enabled: true}
}

func (f *duplicateLinksFilter) Name() string { return "duplicate_links" }

func (f *duplicateLinksFilter) Disable(reason string) {
	f.enabled = false
	f.reason = reason
}

func (f *duplicateLinksFilter) IsEnabled() bool { return f.enabled }

func (f *duplicateLinksFilter) Validate() error { return nil }

func (f *duplicateLinksFilter) Apply(_ context.Context, l *jobs.Listings) (*jobs.Listings, Step, error) {
	initial := l.Len()
	seen := make(map[string]struct{}, initial)
	removed := l.RemoveFunc(func(listing *jobs.Listing) bool {
		link := strings.TrimSpace(listing.Link)
		if link == "" {
			return false
		}
		if _, ok := seen[link]; ok {
			return true
		}
		seen[link] = struct{}{}
		return false
	})
	return l, Step{Initial: initial, Dropped: len(removed), Left: l.Len()}, nil
}

func (f *duplicateLinksFilter) Status() Status {
	return Status{Name: f.Name(), Enabled: f.enabled, Reason: f.reason}
}
