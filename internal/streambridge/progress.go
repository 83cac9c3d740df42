package streambridge

// ProgressSnapshot derives a monotonic-ish (percent, stage) pair from
// what has been observed so far in a run. toolsStarted counts function
// calls seen so far; toolsCompleted counts function responses. Percent
// is capped below 100 until the stream is done so the frontend never
// shows a false-complete state early.
func ProgressSnapshot(toolsStarted, toolsCompleted int, sawModelText, done bool) (percent int, stage string) {
	if done {
		return 100, "Complete"
	}
	if toolsStarted == 0 && !sawModelText {
		return 5, "Rehydrating context"
	}
	if toolsStarted == 0 && sawModelText {
		return 20, "Understanding request"
	}

	fraction := 0.0
	if toolsStarted > 0 {
		fraction = float64(toolsCompleted) / float64(toolsStarted)
	}
	percent = int(25 + fraction*55)
	if percent > 88 {
		percent = 88
	}
	if percent < 25 {
		percent = 25
	}

	switch {
	case toolsCompleted < toolsStarted:
		stage = "Running tools"
	case sawModelText:
		stage = "Drafting response"
	default:
		stage = "Synthesizing results"
	}
	return percent, stage
}
