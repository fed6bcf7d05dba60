package forecast

// State is the position of one instrument in the pipeline. Transitions are
// linear; an instrument never moves back.
type State int

const (
	StateRaw State = iota
	StateWindowed
	StateLagged
	StateSplitScaled
	StateModelSelected
	StateForecasted
)

var stateNames = [...]string{
	StateRaw:           "RAW",
	StateWindowed:      "WINDOWED",
	StateLagged:        "LAGGED",
	StateSplitScaled:   "SPLIT_SCALED",
	StateModelSelected: "MODEL_SELECTED",
	StateForecasted:    "FORECASTED",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// Next returns the following state. FORECASTED is terminal.
func (s State) Next() State {
	if s >= StateForecasted {
		return StateForecasted
	}
	return s + 1
}
