package analysis

import (
	"context"
	"net/url"
	"strings"

	"github.com/spigell/worky/internal/jobs"
	"github.com/spigell/worky/internal/utils"
)

type jobsResponse struct {
	Listings []*jobs.Listing `json:"trabajos"`
}

// MatchJobs asks the matching service for listings that fit an analyzed CV.
// The result is not validated.
func (c *Client) MatchJobs(ctx context.Context, cv *CVResult, role, phone string) (*jobs.Listings, error) {
	const op = "match jobs"

	q := url.Values{}
	q.Set("pdf_url", utils.FirstNonEmpty(cv.SourceURL, cv.ReportURL()))
	q.Set("puesto", roleParam(role))
	q.Set("numero", phone)

	var raw map[string]any
	if err := c.getJSON(ctx, op, c.JobsURL+jobsPath, q, &raw); err != nil {
		return nil, err
	}

	var resp jobsResponse
	if err := decode(raw, &resp); err != nil {
		return nil, &Error{Category: CategoryMalformed, Op: op, Err: err}
	}

	listings := &jobs.Listings{}
	for _, listing := range resp.Listings {
		if listing == nil {
			continue
		}
		if strings.TrimSpace(listing.Title) == "" {
			listing.Title = strings.TrimSpace(listing.Description)
		}
		listings.Items = append(listings.Items, listing)
	}
	return listings, nil
}
