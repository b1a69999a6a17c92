package analysis

import (
	"regexp"

	"github.com/tollgate/tollgate/internal/domain"
)

var (
	breakingRe    = regexp.MustCompile(`(?im)(\bbreaking\b|\bincompatib|^[a-z]+(\([^)]*\))?!:)`)
	deprecationRe = regexp.MustCompile(`(?i)\bdeprecat`)
	perfRe        = regexp.MustCompile(`(?i)(\bperf(ormance)?\b|\boptimi[sz]|\bfaster\b|\bspeed[ -]?up)`)
	securityRe    = regexp.MustCompile(`(?i)(\bcve-\d{4}-\d+|\bghsa-|\bsecurity\b|vulnerab)`)
	featureRe     = regexp.MustCompile(`(?im)(^feat(\([^)]*\))?!?:|\b(adds?|added|introduces?|introduced|new feature)\b)`)
	bugfixRe      = regexp.MustCompile(`(?im)(^fix(\([^)]*\))?!?:|\b(fix|fixes|fixed|bug|resolves?|resolved)\b)`)
)

// scanSignals counts, per signal, how many texts match it. Each commit
// message and the release notes are one text each.
func scanSignals(texts []string) domain.Signals {
	var s domain.Signals
	for _, t := range texts {
		if t == "" {
			continue
		}
		if breakingRe.MatchString(t) {
			s.Breaking++
		}
		if deprecationRe.MatchString(t) {
			s.Deprecation++
		}
		if perfRe.MatchString(t) {
			s.Performance++
		}
		if securityRe.MatchString(t) {
			s.SecurityFix++
		}
		if featureRe.MatchString(t) {
			s.Feature++
		}
		if bugfixRe.MatchString(t) {
			s.Bugfix++
		}
	}
	return s
}
