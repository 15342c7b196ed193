package models

// AwardTier is the overall recognition level earned from GRIT points.
type AwardTier string

const (
	AwardTierNone   AwardTier = "none"
	AwardTierBronze AwardTier = "bronze"
	AwardTierSilver AwardTier = "silver"
	AwardTierGold   AwardTier = "gold"
)

// Award tier thresholds in GRIT points.
const (
	BronzeThreshold = 50
	SilverThreshold = 150
	GoldThreshold   = 300
)

// AwardTierFor maps a points total onto its tier.
func AwardTierFor(points int) AwardTier {
	switch {
	case points >= GoldThreshold:
		return AwardTierGold
	case points >= SilverThreshold:
		return AwardTierSilver
	case points >= BronzeThreshold:
		return AwardTierBronze
	default:
		return AwardTierNone
	}
}
