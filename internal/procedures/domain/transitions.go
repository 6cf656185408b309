package procedure

const (
	ActionEdit   = "edit"
	ActionSettle = "settle"
	ActionVoid   = "void"
)

var transitionMap = map[string][]Status{
	ActionEdit:   {StatusPending},
	ActionSettle: {StatusPending},
	ActionVoid:   {StatusPending},
}

// ValidTransition reports whether action may run on a procedure in status from.
func ValidTransition(action string, from Status) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == from {
			return true
		}
	}
	return false
}
