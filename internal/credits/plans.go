// Package credits holds the plan catalog, the credit ledger and payment
// proof verification.
package credits

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Plan is a purchasable credit package.
type Plan struct {
	ID      string  `mapstructure:"id" json:"id"`
	Name    string  `mapstructure:"name" json:"name"`
	Credits int     `mapstructure:"credits" json:"credits"`
	Price   float64 `mapstructure:"price" json:"price"`
}

// Title is the short label used in plan lists, e.g. "S/7 - 3 créditos".
func (p Plan) Title() string {
	unit := "créditos"
	if p.Credits == 1 {
		unit = "crédito"
	}
	return fmt.Sprintf("%s - %d %s", FormatPrice(p.Price), p.Credits, unit)
}

// FormatPrice renders an amount in soles without trailing zeros.
func FormatPrice(price float64) string {
	return "S/" + strconv.FormatFloat(price, 'f', -1, 64)
}

// Catalog is the ordered list of plans offered to users.
type Catalog []Plan

// DefaultCatalog is used when no plans are configured.
func DefaultCatalog() Catalog {
	return Catalog{
		{ID: "001", Name: "Básico", Credits: 1, Price: 4},
		{ID: "002", Name: "Estándar", Credits: 3, Price: 7},
		{ID: "003", Name: "Premium", Credits: 6, Price: 10},
	}
}

func (c Catalog) Validate() error {
	if len(c) == 0 {
		return errors.New("plan catalog is empty")
	}
	seen := make(map[string]struct{}, len(c))
	for _, p := range c {
		if strings.TrimSpace(p.ID) == "" {
			return errors.New("plan id is required")
		}
		if _, ok := seen[p.ID]; ok {
			return fmt.Errorf("duplicate plan id %q", p.ID)
		}
		seen[p.ID] = struct{}{}
		if p.Credits <= 0 {
			return fmt.Errorf("plan %s: credits must be positive", p.ID)
		}
		if p.Price <= 0 {
			return fmt.Errorf("plan %s: price must be positive", p.ID)
		}
	}
	return nil
}

// Find resolves a reply to a plan by id, then by the exact list title, then by
// the price token it contains.
func (c Catalog) Find(reply string) (Plan, bool) {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return Plan{}, false
	}
	for _, p := range c {
		if reply == p.ID {
			return p, true
		}
	}
	for _, p := range c {
		if strings.EqualFold(reply, p.Title()) {
			return p, true
		}
	}

	lower := strings.ToLower(reply)
	var best Plan
	found := false
	for _, p := range c {
		token := strings.ToLower(FormatPrice(p.Price))
		if !containsToken(lower, token) {
			continue
		}
		if !found || len(token) > len(strings.ToLower(FormatPrice(best.Price))) {
			best, found = p, true
		}
	}
	return best, found
}

// containsToken reports whether token appears in s not followed by another digit,
// so that "s/1" does not match "s/10".
func containsToken(s, token string) bool {
	for i := 0; ; {
		idx := strings.Index(s[i:], token)
		if idx < 0 {
			return false
		}
		end := i + idx + len(token)
		if end == len(s) || s[end] < '0' || s[end] > '9' {
			return true
		}
		i = i + idx + 1
	}
}
