package domain

import "math"

// SplitSides partitions non-eliminated players into the left and right rope
// sides by the sign of their lane position. Lane 0 counts as right.
func SplitSides(players []Player) (left, right []Player) {
	for _, player := range players {
		if player.IsEliminated {
			continue
		}
		if player.Lane < 0 {
			left = append(left, player)
		} else {
			right = append(right, player)
		}
	}
	return left, right
}

func meanLane(side []Player) float64 {
	if len(side) == 0 {
		return 0
	}
	sum := 0.0
	for _, player := range side {
		sum += player.Lane
	}
	return sum / float64(len(side))
}

func meanAbsLane(side []Player) float64 {
	if len(side) == 0 {
		return 0
	}
	sum := 0.0
	for _, player := range side {
		sum += math.Abs(player.Lane)
	}
	return sum / float64(len(side))
}

// RopePositionFor discretizes the midpoint of the two side means. The rope
// is right iff the midpoint exceeds threshold, left iff it is below
// -threshold, center otherwise (values exactly at the threshold are center).
func RopePositionFor(leftMean, rightMean, threshold float64) RopePosition {
	midpoint := (leftMean + rightMean) / 2
	switch {
	case midpoint > threshold:
		return RopeRight
	case midpoint < -threshold:
		return RopeLeft
	default:
		return RopeCenter
	}
}

// RopeFromPlayers computes the discretized rope position for the current
// player set. With either side empty the rope stays centered.
func RopeFromPlayers(players []Player, threshold float64) RopePosition {
	left, right := SplitSides(players)
	if len(left) == 0 || len(right) == 0 {
		return RopeCenter
	}
	return RopePositionFor(meanLane(left), meanLane(right), threshold)
}

// SideInPit reports whether every member of the side has been dragged to
// within pitThreshold of the center line. A single member still outside the
// threshold keeps the side alive. Empty sides are never in the pit.
func SideInPit(side []Player, pitThreshold float64) bool {
	if len(side) == 0 {
		return false
	}
	for _, player := range side {
		if math.Abs(player.Lane) > pitThreshold {
			return false
		}
	}
	return true
}

// PitWinners returns the ids of the side that dragged its opponents into
// the center pit, or nil if neither side has won by displacement.
func PitWinners(players []Player, pitThreshold float64) []string {
	left, right := SplitSides(players)
	if SideInPit(left, pitThreshold) && len(right) > 0 {
		return playerIDs(right)
	}
	if SideInPit(right, pitThreshold) && len(left) > 0 {
		return playerIDs(left)
	}
	return nil
}

// TimeoutWinners arbitrates a round that reached the timer without a
// displacement win. Rope side decides; a centered rope falls back to the
// side with the larger mean absolute displacement, and a true tie yields no
// winners. A side with no opponents wins by default.
func TimeoutWinners(players []Player, rope RopePosition) []string {
	left, right := SplitSides(players)

	switch {
	case len(left) == 0 && len(right) == 0:
		return nil
	case len(left) == 0:
		return playerIDs(right)
	case len(right) == 0:
		return playerIDs(left)
	}

	switch rope {
	case RopeLeft:
		return playerIDs(left)
	case RopeRight:
		return playerIDs(right)
	}

	leftDistance := meanAbsLane(left)
	rightDistance := meanAbsLane(right)
	switch {
	case leftDistance > rightDistance:
		return playerIDs(left)
	case rightDistance > leftDistance:
		return playerIDs(right)
	default:
		return nil
	}
}

// FinishWinners returns the non-eliminated players whose forward progress
// reached the finish threshold, in list order.
func FinishWinners(players []Player, finishZ float64) []string {
	var winners []string
	for _, player := range players {
		if !player.IsEliminated && player.Z >= finishZ {
			winners = append(winners, player.ID)
		}
	}
	return winners
}

func playerIDs(side []Player) []string {
	ids := make([]string, 0, len(side))
	for _, player := range side {
		ids = append(ids, player.ID)
	}
	return ids
}
