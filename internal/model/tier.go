package model

// Tier is a service level gating which models a request may use.
type Tier string

const (
	TierBasic        Tier = "basic"
	TierProfessional Tier = "professional"
	TierEnterprise   Tier = "enterprise"
	TierIntelligence Tier = "intelligence"
)

// tierRank defines the ordering basic < professional < enterprise < intelligence.
var tierRank = map[Tier]int{
	TierBasic:        0,
	TierProfessional: 1,
	TierEnterprise:   2,
	TierIntelligence: 3,
}

// Valid returns true if the tier is a known value.
func (t Tier) Valid() bool {
	_, ok := tierRank[t]
	return ok
}

// Rank returns the tier's position in the ordering, or -1 for unknown tiers.
func (t Tier) Rank() int {
	r, ok := tierRank[t]
	if !ok {
		return -1
	}
	return r
}

// AtLeast reports whether t ranks at or above other.
func (t Tier) AtLeast(other Tier) bool {
	return t.Rank() >= other.Rank()
}

// Tiers returns all tiers in ascending order.
func Tiers() []Tier {
	return []Tier{TierBasic, TierProfessional, TierEnterprise, TierIntelligence}
}

// TiersFrom returns t and every tier ranked above it, in ascending order.
func TiersFrom(t Tier) []Tier {
	var out []Tier
	for _, candidate := range Tiers() {
		if candidate.Rank() >= t.Rank() {
			out = append(out, candidate)
		}
	}
	return out
}
