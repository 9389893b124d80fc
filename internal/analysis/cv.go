package analysis

import (
	"context"
	"net/url"

	"github.com/spigell/worky/internal/store"
)

// CVResult is the normalized response of the CV analysis service.
type CVResult struct {
	AnalysisID string
	SourceURL  string
	Candidate  store.CandidateInfo
	Results    store.AnalysisResults
}

// ReportURL is the generated report, if the service produced one.
func (r *CVResult) ReportURL() string {
	return r.Results.ReportURL
}

type cvResponse struct {
	AnalysisID string `json:"analysis_id"`
	Extracted  struct {
		SourceURL string                `json:"cvOriginalFileUrl"`
		Candidate store.CandidateInfo   `json:"extractedData"`
		Results   store.AnalysisResults `json:"analysisResults"`
	} `json:"extractedData"`
}

// AnalyzeCV runs the long CV analysis for documentURL against role.
func (c *Client) AnalyzeCV(ctx context.Context, documentURL, role, name string) (*CVResult, error) {
	const op = "analyze cv"

	q := url.Values{}
	q.Set("pdf_url", documentURL)
	q.Set("puesto_postular", roleParam(role))
	q.Set("original_name", name)

	var raw map[string]any
	if err := c.getJSON(ctx, op, c.BaseURL+cvPath, q, &raw); err != nil {
		return nil, err
	}

	var resp cvResponse
	if err := decode(raw, &resp); err != nil {
		return nil, &Error{Category: CategoryMalformed, Op: op, Err: err}
	}

	result := &CVResult{
		AnalysisID: resp.AnalysisID,
		SourceURL:  resp.Extracted.SourceURL,
		Candidate:  resp.Extracted.Candidate,
		Results:    resp.Extracted.Results,
	}
	if result.SourceURL == "" {
		result.SourceURL = documentURL
	}
	return result, nil
}
