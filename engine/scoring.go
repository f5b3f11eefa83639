package engine

// score returns a torrent's selection/weighting score in [0,1], combining
// leecher count and upload speed per the fixed weights this system uses.
func score(numLeechs int, upSpeed int64) float64 {
	leechComponent := float64(numLeechs) / 20.0
	if leechComponent > 1 {
		leechComponent = 1
	}
	speedComponent := float64(upSpeed) / 1048576.0
	if speedComponent > 1 {
		speedComponent = 1
	}
	return 0.6*leechComponent + 0.4*speedComponent
}

// scoreBucket classifies a score for telemetry.
func scoreBucket(s float64) string {
	switch {
	case s >= 0.8:
		return "high"
	case s >= 0.5:
		return "medium"
	case s >= 0.2:
		return "low"
	default:
		return "ignored"
	}
}
