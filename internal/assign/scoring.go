package assign

import "github.com/Tsipchain/thronos-verifyid/internal/types"

// Weights tunes the agent scoring policy. The defaults keep load dominant,
// then efficiency, then experience; changing the ranking behavior requires
// updating the scoring tests.
type Weights struct {
	Load       float64 // spare-capacity weight
	Efficiency float64 // resolution-speed weight
	Experience float64 // daily-throughput weight

	PriorityBoost   float64 // multiplier applied for high/urgent requests
	DurationCapSecs float64 // average duration treated as the slowest useful value
	ExperienceCap   int     // completed calls treated as fully experienced
}

// DefaultWeights returns the documented default scoring policy
func DefaultWeights() Weights {
	return Weights{
		Load:            0.5,
		Efficiency:      0.3,
		Experience:      0.2,
		PriorityBoost:   1.2,
		DurationCapSecs: 1200, // 20 minutes
		ExperienceCap:   20,
	}
}

// Score rates an agent's suitability for a request in [0,1] (boost may push
// high/urgent scores above 1; the boost does not change cross-agent ranking
// for a single request and is retained for assignment-pressure analytics).
// Pure and side-effect-free.
func Score(agent *types.Agent, priority types.Priority, w Weights) float64 {
	loadFactor := 1 - float64(agent.ActiveCalls)/float64(agent.MaxConcurrentCalls)

	avg := agent.AvgCallDurationSeconds / w.DurationCapSecs
	if avg > 1 {
		avg = 1
	}
	efficiencyFactor := 1 - avg

	experienceFactor := float64(agent.CallsCompletedToday) / float64(w.ExperienceCap)
	if experienceFactor > 1 {
		experienceFactor = 1
	}

	score := w.Load*loadFactor + w.Efficiency*efficiencyFactor + w.Experience*experienceFactor
	if priority >= types.PriorityHigh {
		score *= w.PriorityBoost
	}
	return score
}
