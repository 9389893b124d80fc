package filtering

import (
	"context"

	"github.com/spigell/worky/internal/jobs"
)

type requiredFieldsFilter struct{}

// NewRequiredFields drops listings without a title, company or location.
// It cannot be disabled: the conversation relies on all three fields.
func NewRequiredFields() Filter {
	return &requiredFieldsFilter{}
}

func (f *requiredFieldsFilter) Name() string { return "required_fields" }

func (f *requiredFieldsFilter) Disable(string) {}

func (f *requiredFieldsFilter) IsEnabled() bool { return true }

func (f *requiredFieldsFilter) Validate() error { return nil }

func (f *requiredFieldsFilter) Apply(_ context.Context, l *jobs.Listings) (*jobs.Listings, Step, error) {
	initial := l.Len()
	removed := l.RemoveFunc(func(listing *jobs.Listing) bool { return !listing.Valid() })
	return l, Step{Initial: initial, Dropped: len(removed), Left: l.Len()}, nil
}
