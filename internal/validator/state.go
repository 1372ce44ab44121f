package validator

import "fmt"

// State is the position of a draft in the validation lifecycle.
type State int

const (
	StateDraft State = iota
	StateScored
	StateAccepted
	StateMarginal
	StateRejected
)

var stateNames = [...]string{"draft", "scored", "accepted", "marginal", "rejected"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateAccepted || s == StateMarginal || s == StateRejected
}

var transitions = map[State][]State{
	StateDraft:  {StateScored},
	StateScored: {StateAccepted, StateMarginal, StateRejected},
}

// To returns next if the transition from s is allowed.
func (s State) To(next State) (State, error) {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return next, nil
		}
	}
	return s, fmt.Errorf("invalid transition %s -> %s", s, next)
}
