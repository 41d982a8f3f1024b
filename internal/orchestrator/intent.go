package orchestrator

import (
	"sort"
	"strings"
)

// Human flow kinds for HumanFlowState.Flow.
const (
	FlowGeneric   = "generic"
	FlowClaim     = "claim"
	FlowBilling   = "billing"
	FlowTechnical = "technical"
)

// Intent is the domain/complexity profile inferred from a query.
type Intent struct {
	PrimaryDomain   string
	SecondaryDomain string
	Complexity      string // low|medium|high
	Flow            string
}

// DomainClassifier infers skill domains and complexity from the query via
// configured keyword lists. Deterministic; independent of the semantic
// scorer.
type DomainClassifier struct {
	domains map[string][]string
}

// NewDomainClassifier builds a classifier from the domain → keyword map.
func NewDomainClassifier(domains map[string][]string) *DomainClassifier {
	return &DomainClassifier{domains: domains}
}

// Classify infers the intent for a query.
func (d *DomainClassifier) Classify(text string) Intent {
	lower := strings.ToLower(text)

	type hit struct {
		domain string
		count  int
	}
	var hits []hit
	total := 0
	for domain, keywords := range d.domains {
		count := 0
		for _, kw := range keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				count++
			}
		}
		if count > 0 {
			hits = append(hits, hit{domain, count})
			total += count
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].count != hits[j].count {
			return hits[i].count > hits[j].count
		}
		return hits[i].domain < hits[j].domain
	})

	in := Intent{PrimaryDomain: "general", Flow: FlowGeneric, Complexity: "low"}
	if len(hits) > 0 {
		in.PrimaryDomain = hits[0].domain
		in.Flow = flowFor(hits[0].domain)
	}
	if len(hits) > 1 {
		in.SecondaryDomain = hits[1].domain
	}
	switch {
	case total >= 3 || len(hits) > 1:
		in.Complexity = "high"
	case total >= 1:
		in.Complexity = "medium"
	}
	return in
}

func flowFor(domain string) string {
	switch domain {
	case "claims":
		return FlowClaim
	case "billing":
		return FlowBilling
	case "technical":
		return FlowTechnical
	default:
		return FlowGeneric
	}
}
