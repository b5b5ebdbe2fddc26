package ledger

import "math"

// Summary is the per-lane aggregate carried in snapshot and summary_upsert
// frames. It is computed at read time from current events, never stored.
type Summary struct {
	Lane  Lane `json:"lane"`
	Count int  `json:"count"`

	ByState map[State]int `json:"by_state"`

	// NetAmount sums signed amounts; Exposure sums only the negative side.
	NetAmount float64 `json:"net_amount"`
	Exposure  float64 `json:"exposure"`

	// WeightedConfidence is the abs-amount-weighted mean confidence, falling
	// back to a plain mean when all amounts are zero.
	WeightedConfidence float64 `json:"weighted_confidence"`
}

// Summarize aggregates events per lane. Known lanes appear in stable order
// even when empty; lanes seen only on events are appended after.
func Summarize(events []Event) []Summary {
	byLane := make(map[Lane][]Event)
	for _, ev := range events {
		byLane[ev.Lane] = append(byLane[ev.Lane], ev)
	}

	order := Lanes()
	seen := make(map[Lane]bool, len(order))
	for _, l := range order {
		seen[l] = true
	}
	for _, ev := range events {
		if !seen[ev.Lane] {
			seen[ev.Lane] = true
			order = append(order, ev.Lane)
		}
	}

	out := make([]Summary, 0, len(order))
	for _, lane := range order {
		out = append(out, SummarizeLane(lane, byLane[lane]))
	}
	return out
}

// SummarizeLane aggregates one lane's events.
func SummarizeLane(lane Lane, events []Event) Summary {
	s := Summary{Lane: lane, ByState: make(map[State]int)}

	var weightSum, weighted, plain float64
	for _, ev := range events {
		s.Count++
		s.ByState[ev.State]++
		s.NetAmount += ev.Amount
		if ev.Amount < 0 {
			s.Exposure += ev.Amount
		}

		w := math.Abs(ev.Amount)
		weightSum += w
		weighted += w * ev.Confidence
		plain += ev.Confidence
	}

	if weightSum > 0 {
		s.WeightedConfidence = weighted / weightSum
	} else if s.Count > 0 {
		s.WeightedConfidence = plain / float64(s.Count)
	}
	return s
}
