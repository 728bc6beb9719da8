package lookup

import (
	"math"

	"github.com/OFFIS-RIT/prospect/pkg/common"
)

// SizeSignal maps a headcount to [0, 1] on a log10 scale saturating at
// MaxLogHeadcount.
func SizeSignal(headcount int64) float64 {
	if headcount <= 0 {
		return 0
	}
	return min(math.Log10(float64(headcount)+1)/MaxLogHeadcount, 1)
}

// RankBySize blends similarity with the size signal for backends that cannot
// do it server-side and re-sorts cands closest first:
//
//	score = (1-bias)*similarity + bias*SizeSignal(headcount)
//
// similarity is 1-distance for LowerIsCloser and the distance itself
// otherwise. Distance is rewritten to the blended value in the backend's own
// direction, so SortByDistance with the same order keeps the result stable.
func RankBySize(cands []common.LookupCandidate, order DistanceOrder, bias float64) {
	bias = ClampSizeBias(bias)
	for i := range cands {
		sim := cands[i].Distance
		if order == LowerIsCloser {
			sim = 1 - sim
		}
		score := (1-bias)*sim + bias*SizeSignal(cands[i].Headcount)
		if order == LowerIsCloser {
			cands[i].Distance = 1 - score
		} else {
			cands[i].Distance = score
		}
	}
	SortByDistance(cands, order)
}
