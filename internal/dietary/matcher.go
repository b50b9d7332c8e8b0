// Package dietary matches order text against resident dietary restrictions.
// Matching is deterministic keyword lookup so every alert can be traced back
// to the exact term that produced it.
package dietary

import "strings"

// Restriction pairs a resident with one of their known restrictions.
type Restriction struct {
	ResidentName string `json:"resident_name"`
	Name         string `json:"restriction"`
}

// Alert is emitted when order text contains a term forbidden by a restriction.
type Alert struct {
	ResidentName string `json:"resident_name"`
	Restriction  string `json:"restriction"`
	Severity     string `json:"severity"`
}

const (
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// forbiddenTerms maps a restriction name to the terms that trigger it.
// Lookup is case-insensitive on the restriction name.
var forbiddenTerms = map[string][]string{
	"gluten-free":       {"gluten", "wheat", "bread", "pasta", "flour", "crouton"},
	"no nuts":           {"nut", "peanut", "almond", "cashew", "walnut", "pecan"},
	"dairy-free":        {"milk", "cheese", "butter", "cream", "yogurt", "dairy"},
	"no shellfish":      {"shrimp", "crab", "lobster", "clam", "oyster", "scallop"},
	"low sodium":        {"salt", "salted", "soy sauce", "bacon", "ham"},
	"diabetic":          {"sugar", "syrup", "honey", "candy", "soda"},
	"no eggs":           {"egg", "mayonnaise", "meringue"},
	"vegetarian":        {"beef", "pork", "chicken", "bacon", "ham", "steak"},
	"no pork":           {"pork", "bacon", "ham", "sausage"},
	"pureed diet":       {"whole", "chunky", "crunchy"},
	"thickened liquids": {"water", "juice", "coffee", "tea"},
}

// severities marks restrictions whose violation is more than a warning.
// Anything not listed defaults to SeverityWarning.
var severities = map[string]string{
	"no nuts":      SeverityCritical,
	"no shellfish": SeverityCritical,
	"no eggs":      SeverityCritical,
}

// Terms returns the forbidden-term set for a restriction name, or nil if the
// restriction is unknown.
func Terms(restriction string) []string {
	return forbiddenTerms[strings.ToLower(strings.TrimSpace(restriction))]
}

// Severity returns the severity assigned to a restriction.
func Severity(restriction string) string {
	if s, ok := severities[strings.ToLower(strings.TrimSpace(restriction))]; ok {
		return s
	}
	return SeverityWarning
}

// Match scans text against each restriction in the order given and returns one
// alert per violated restriction. It is a pure function: identical inputs
// always produce identical, order-stable results.
func Match(text string, restrictions []Restriction) []Alert {
	lowered := strings.ToLower(text)

	var alerts []Alert
	for _, r := range restrictions {
		for _, term := range Terms(r.Name) {
			if strings.Contains(lowered, term) {
				alerts = append(alerts, Alert{
					ResidentName: r.ResidentName,
					Restriction:  r.Name,
					Severity:     Severity(r.Name),
				})
				break
			}
		}
	}
	return alerts
}
