package filtering

import (
	"context"
	"strconv"

	"github.com/spigell/worky/internal/jobs"
)

type excludedCompaniesFilter struct {
	companies []string
}

// NewExcludedCompanies removes listings posted by the configured companies.
func NewExcludedCompanies(companies []string) Filter {
	return &excludedCompaniesFilter{companies: companies}
}

func (f *excludedCompaniesFilter) Name() string { return "excluded_companies" }

func (f *excludedCompaniesFilter) Disable(string) {}

func (f *excludedCompaniesFilter) IsEnabled() bool { return true }

func (f *excludedCompaniesFilter) Validate() error { return nil }

func (f *excludedCompaniesFilter) Apply(_ context.Context, l *jobs.Listings) (*jobs.Listings, Step, error) {
	initial := l.Len()
	excluded := l.Exclude(jobs.ListingCompanyField, f.companies)
	return l, Step{Initial: initial, Dropped: len(excluded), Left: l.Len()}, nil
}

func (f *excludedCompaniesFilter) Status() Status {
	return Status{
		Name:    f.Name(),
		Enabled: true,
		Details: map[string]string{"companies": strconv.Itoa(len(f.companies))},
	}
}
