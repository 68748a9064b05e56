package westgard

import "math"

// Resolve maps a method sigma score and control-level count to a sigma
// category and the set of rejection rules active for that category.
//
// An unknown sigma (NaN or 0) falls into the weakest band, <4, which carries
// the largest rule set. 1_3s is always active. The mapping is total and pure:
// every input yields a deterministic result, and raising the category only
// ever shrinks the set.
func Resolve(sigma float64, levelCount int) (Category, RuleSet) {
	var cat Category
	switch {
	case math.IsNaN(sigma) || sigma == 0:
		cat = CategoryBelow4
	case sigma >= 6:
		cat = Category6
	case sigma >= 5:
		cat = Category5
	case sigma >= 4:
		cat = Category4
	default:
		cat = CategoryBelow4
	}

	set := RuleSet{Rule13s: true}

	if levelCount == 2 {
		switch cat {
		case Category6:
		case Category5:
			set[RuleR4s], set[Rule22s] = true, true
		case Category4:
			set[RuleR4s], set[Rule22s], set[Rule41s] = true, true, true
		default:
			set[RuleR4s], set[Rule22s], set[Rule41s], set[Rule10x] = true, true, true, true
		}
	} else {
		switch cat {
		case Category6:
		case Category5:
			set[RuleR4s], set[Rule2of32s] = true, true
		case Category4:
			set[RuleR4s], set[Rule2of32s], set[Rule31s] = true, true, true
		default:
			set[RuleR4s], set[Rule2of32s], set[Rule31s], set[Rule9x] = true, true, true, true
		}
	}

	return cat, set
}
