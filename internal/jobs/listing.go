// Package jobs holds the job listings produced by a search.
package jobs

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	IDPrefix = "trabajo_"

	ListingIDField      = "ID"
	ListingCompanyField = "Company"
	ListingLinkField    = "Link"
)

type Listings struct {
	Items []*Listing
}

// Listing is one job returned by the matching service.
type Listing struct {
	ID          string  `json:"id,omitempty"`
	Title       string  `json:"title,omitempty"`
	Company     string  `json:"company,omitempty"`
	Location    string  `json:"location,omitempty"`
	Link        string  `json:"link,omitempty"`
	Match       float64 `json:"porcentaje,omitempty"`
	Description string  `json:"description,omitempty"`
}

// Valid reports whether title, company and location are all present.
func (l *Listing) Valid() bool {
	return l != nil &&
		strings.TrimSpace(l.Title) != "" &&
		strings.TrimSpace(l.Company) != "" &&
		strings.TrimSpace(l.Location) != ""
}

func (l *Listing) GetStringField(name string) string {
	switch name {
	case ListingIDField:
		return l.ID
	case ListingCompanyField:
		return l.Company
	case ListingLinkField:
		return l.Link
	default:
		return ""
	}
}

// MatchLabel renders the match percentage for display.
func (l *Listing) MatchLabel() string {
	if l.Match <= 0 {
		return ""
	}
	return strconv.FormatFloat(l.Match, 'f', -1, 64) + "%"
}

func (l *Listings) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Items)
}

func (l *Listings) FindByID(id string) *Listing {
	for _, listing := range l.Items {
		if listing.ID == id {
			return listing
		}
	}
	return nil
}

// Find resolves a user reply: a listing id, a 1-based position or a title.
func (l *Listings) Find(reply string) *Listing {
	reply = strings.TrimSpace(reply)
	if reply == "" || l.Len() == 0 {
		return nil
	}
	if listing := l.FindByID(reply); listing != nil {
		return listing
	}
	if n, err := strconv.Atoi(reply); err == nil {
		if n >= 1 && n <= len(l.Items) {
			return l.Items[n-1]
		}
		return nil
	}
	for _, listing := range l.Items {
		if strings.EqualFold(strings.TrimSpace(listing.Title), reply) {
			return listing
		}
	}
	return nil
}

// AssignIDs numbers the listings in order as trabajo_1, trabajo_2, ...
func (l *Listings) AssignIDs() {
	for idx, listing := range l.Items {
		listing.ID = fmt.Sprintf("%s%d", IDPrefix, idx+1)
	}
}

// Exclude removes listings whose field equals one of targets and returns their ids.
// Order of the remaining listings is preserved.
func (l *Listings) Exclude(name string, targets []string) []string {
	if len(targets) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(targets))
	for _, target := range targets {
		set[strings.ToLower(strings.TrimSpace(target))] = struct{}{}
	}

	return l.RemoveFunc(func(listing *Listing) bool {
		_, ok := set[strings.ToLower(strings.TrimSpace(listing.GetStringField(name)))]
		return ok
	})
}

// RemoveFunc drops listings matching fn and returns a description of each one removed.
func (l *Listings) RemoveFunc(fn func(*Listing) bool) []string {
	var removed []string
	kept := l.Items[:0]
	for _, listing := range l.Items {
		if listing == nil || fn(listing) {
			removed = append(removed, describe(listing))
			continue
		}
		kept = append(kept, listing)
	}
	for i := len(kept); i < len(l.Items); i++ {
		l.Items[i] = nil
	}
	l.Items = kept
	return removed
}

// ReportByCompany groups listings by company for logging.
func (l *Listings) ReportByCompany() map[string][]map[string]string {
	report := make(map[string][]map[string]string)
	for _, listing := range l.Items {
		report[listing.Company] = append(report[listing.Company], map[string]string{
			"title":    listing.Title,
			"location": listing.Location,
			"link":     listing.Link,
			"match":    listing.MatchLabel(),
		})
	}
	return report
}

func describe(listing *Listing) string {
	if listing == nil {
		return "<nil>"
	}
	if listing.ID != "" {
		return listing.ID
	}
	if listing.Title != "" {
		return listing.Title
	}
	return "<untitled>"
}
