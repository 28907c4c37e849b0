package extraction

// Per-field boosts and text-quality bonuses.
const (
	BoostDate      = 20
	BoostMerchant  = 25
	BoostVAT       = 10
	BoostLineItems = 15

	BonusRawLength   = 5  // raw text longer than rawLengthFloor
	BonusCleanLength = 5  // cleaned text longer than cleanLengthFloor
	BonusKeyword     = 10 // total keyword literally present
	BonusManyItems   = 5  // more than manyItemsFloor line items

	rawLengthFloor   = 100
	cleanLengthFloor = 50
	manyItemsFloor   = 3
)

// Signals are the score inputs that are not part of Fields.
type Signals struct {
	TotalBoost     int
	RawLength      int
	KeywordPresent bool
}

// Score sums the boosts earned by f. The result is not clamped and can exceed
// 100; thresholds compare against the raw sum.
func Score(f *Fields, s Signals) int {
	score := 0
	if f.Total.Valid {
		score += s.TotalBoost
	}
	if f.Date != nil {
		score += BoostDate
	}
	if f.Merchant != "" {
		score += BoostMerchant
	}
	if f.VAT.Valid {
		score += BoostVAT
	}
	if len(f.LineItems) > 0 {
		score += BoostLineItems
	}

	if s.RawLength > rawLengthFloor {
		score += BonusRawLength
	}
	if len([]rune(f.CleanedText)) > cleanLengthFloor {
		score += BonusCleanLength
	}
	if s.KeywordPresent {
		score += BonusKeyword
	}
	if len(f.LineItems) > manyItemsFloor {
		score += BonusManyItems
	}
	return score
}
