package entitlement

// OperationClass categorizes what operations are allowed in a given state.
type OperationClass string

const (
	OpFull   OperationClass = "full"   // All operations allowed
	OpLocked OperationClass = "locked" // All operations blocked, contact support
)

// StateBehavior describes what is allowed for a specific access decision.
type StateBehavior struct {
	// State is the access state this behavior applies to.
	State AccessState

	// Operations describes what operations are allowed.
	Operations OperationClass

	// ShowWarning indicates whether the UI should show a warning banner.
	ShowWarning bool

	// Description is a human-readable description of the state behavior.
	Description string
}

// StateBehaviors maps each access state to its behavior rules.
var StateBehaviors = map[AccessState]StateBehavior{
	StateActive: {
		State:       StateActive,
		Operations:  OpFull,
		ShowWarning: false,
		Description: "Normal operation, all surfaces reachable.",
	},
	StateSuspended: {
		State:       StateSuspended,
		Operations:  OpLocked,
		ShowWarning: true,
		Description: "Access suspended; renewal or support contact required.",
	},
	StateBanned: {
		State:       StateBanned,
		Operations:  OpLocked,
		ShowWarning: true,
		Description: "Account banned; no operations permitted.",
	},
}

// expiryWarningDays is the remaining-day threshold below which an active
// session gets a renewal warning banner.
const expiryWarningDays = 3

// GetBehavior returns the behavior rules for the given decision. Unknown
// states get the locked behavior. Active sessions close to expiry carry
// the warning flag.
func GetBehavior(d Decision) StateBehavior {
	b, ok := StateBehaviors[d.State]
	if !ok {
		return StateBehaviors[StateSuspended]
	}
	if d.State == StateActive && d.DaysRemaining != nil && *d.DaysRemaining <= expiryWarningDays {
		b.ShowWarning = true
	}
	return b
}
