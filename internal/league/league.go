// internal/league/league.go
package league

// Tier is one band in the ordered league ladder.
type Tier string

const (
	TierUnranked  Tier = "unranked"
	TierIron      Tier = "iron"
	TierBronze    Tier = "bronze"
	TierSilver    Tier = "silver"
	TierGold      Tier = "gold"
	TierDiamond   Tier = "diamond"
	TierPlatinum  Tier = "platinum"
	TierAscendant Tier = "ascendant"
	TierImmortal  Tier = "immortal"
	TierRadiant   Tier = "radiant"
)

// Rank is the sub-rank within a tier. 1 is highest, 3 lowest.
type Rank int

// League describes one tier's point band. MaxPoints < 0 means unbounded above.
type League struct {
	Tier      Tier   `json:"tier"`
	MinPoints int    `json:"min_points"`
	MaxPoints int    `json:"max_points"`
	Icon      string `json:"icon"`
}

// Leagues is the canonical ladder. Intervals are inclusive on both ends and
// partition [0, inf): each band starts one point above the previous band's max.
var Leagues = []League{
	{Tier: TierUnranked, MinPoints: 0, MaxPoints: 99, Icon: "○"},
	{Tier: TierIron, MinPoints: 100, MaxPoints: 299, Icon: "⚙️"},
	{Tier: TierBronze, MinPoints: 300, MaxPoints: 599, Icon: "🥉"},
	{Tier: TierSilver, MinPoints: 600, MaxPoints: 999, Icon: "🥈"},
	{Tier: TierGold, MinPoints: 1000, MaxPoints: 1499, Icon: "🥇"},
	{Tier: TierDiamond, MinPoints: 1500, MaxPoints: 2249, Icon: "💎"},
	{Tier: TierPlatinum, MinPoints: 2250, MaxPoints: 3249, Icon: "🔷"},
	{Tier: TierAscendant, MinPoints: 3250, MaxPoints: 4499, Icon: "⬆️"},
	{Tier: TierImmortal, MinPoints: 4500, MaxPoints: 5999, Icon: "👑"},
	{Tier: TierRadiant, MinPoints: 6000, MaxPoints: -1, Icon: "✨"},
}

// Classify maps a point total to its league tier and sub-rank.
//
// The matched band is split into three equal thirds: the lower third is rank 3,
// the middle third rank 2, the upper third rank 1. The open-ended top tier is
// always rank 1. Negative or unmatched totals fall back to (unranked, 3).
func Classify(points int) (Tier, Rank) {
	for _, l := range Leagues {
		if points < l.MinPoints {
			continue
		}
		if l.MaxPoints >= 0 && points > l.MaxPoints {
			continue
		}

		if l.MaxPoints < 0 {
			return l.Tier, 1
		}

		span := l.MaxPoints - l.MinPoints
		progress := points - l.MinPoints
		third := float64(span) / 3

		switch {
		case float64(progress) < third:
			return l.Tier, 3
		case float64(progress) < third*2:
			return l.Tier, 2
		default:
			return l.Tier, 1
		}
	}
	return TierUnranked, 3
}

// Index returns the tier's position in the ladder, 0 for unranked.
// Unknown tiers also map to 0 so comparisons degrade safely.
func Index(t Tier) int {
	for i, l := range Leagues {
		if l.Tier == t {
			return i
		}
	}
	return 0
}

// AtLeast reports whether tier t sits at or above the reference tier.
func AtLeast(t, ref Tier) bool {
	return Index(t) >= Index(ref)
}
