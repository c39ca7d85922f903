// AngelaMos | 2026
// transition.go

package subscription

type State string

const (
	StateFree        State = "FREE"
	StateActiveBasic State = "ACTIVE_BASIC"
	StateActivePro   State = "ACTIVE_PRO"
)

func (s *Subscription) State() State {
	switch s.PlanID {
	case PlanBasic:
		return StateActiveBasic
	case PlanPro:
		return StateActivePro
	default:
		return StateFree
	}
}

func stateForPlan(p Plan) (State, bool) {
	switch p {
	case PlanBasic:
		return StateActiveBasic, true
	case PlanPro:
		return StateActivePro, true
	default:
		return "", false
	}
}

type transition struct {
	from State
	to   State
}

// Plans only move up. Nothing leads back to StateFree or from pro to basic.
var validTransitions = map[transition]bool{
	{StateFree, StateActiveBasic}:        true,
	{StateFree, StateActivePro}:          true,
	{StateActiveBasic, StateActivePro}:   true,
	{StateActiveBasic, StateActiveBasic}: true,
	{StateActivePro, StateActivePro}:     true,
}

func canTransition(from, to State) bool {
	return validTransitions[transition{from, to}]
}

var stateRank = map[State]int{
	StateFree:        0,
	StateActiveBasic: 1,
	StateActivePro:   2,
}

// isDowngrade reports whether moving from one state to another would lower
// the plan, which only a stale or out-of-order callback asks for.
func isDowngrade(from, to State) bool {
	return stateRank[to] < stateRank[from]
}
