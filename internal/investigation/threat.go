package investigation

import "github.com/scamlens/scamlens/internal/model"

// ThreatThreshold maps a consensus lower bound to a threat level.
type ThreatThreshold struct {
	Lower float64
	Level model.ThreatLevel
}

// DefaultThresholds is the standard classification table, ordered from the
// highest bound down. Classification picks the first satisfied bound, so the
// cutoffs can be tuned without touching orchestration code.
var DefaultThresholds = []ThreatThreshold{
	{Lower: 0.85, Level: model.ThreatCritical},
	{Lower: 0.60, Level: model.ThreatHigh},
	{Lower: 0.35, Level: model.ThreatMedium},
	{Lower: 0, Level: model.ThreatLow},
}

// ClassifyThreat returns the threat level for a consensus score using the
// first entry whose lower bound the score satisfies.
func ClassifyThreat(score float64, table []ThreatThreshold) model.ThreatLevel {
	for _, t := range table {
		if score >= t.Lower {
			return t.Level
		}
	}
	return model.ThreatLow
}

// recommendationsFor returns the action list for a threat level.
func recommendationsFor(level model.ThreatLevel) []string {
	switch level {
	case model.ThreatCritical:
		return []string{
			"Do not engage further with this party or site",
			"Report to your financial institution immediately",
			"File a report with the relevant fraud authority",
			"Preserve all communications as evidence",
		}
	case model.ThreatHigh:
		return []string{
			"Avoid sharing personal or financial information",
			"Independently verify the party through official channels",
			"Report the suspected scam to the platform it appeared on",
		}
	case model.ThreatMedium:
		return []string{
			"Proceed with caution and verify claims independently",
			"Look for verified contact details and company registration",
		}
	default:
		return []string{
			"No strong fraud indicators found; remain alert for changes",
		}
	}
}
