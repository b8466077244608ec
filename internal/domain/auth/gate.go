package auth

// Decision is the outcome of the authorization gate.
type Decision int

const (
	// DecisionPending means the session is still being resolved; render a neutral wait state.
	DecisionPending Decision = iota
	// DecisionDenied means no principal is signed in; send the visitor to the public landing page.
	DecisionDenied
	// DecisionAllowed means a principal is signed in; render the protected content.
	DecisionAllowed
)

// String returns the decision name used in logs and metrics.
func (d Decision) String() string {
	switch d {
	case DecisionPending:
		return "pending"
	case DecisionDenied:
		return "denied"
	case DecisionAllowed:
		return "allowed"
	default:
		return "unknown"
	}
}

// Decide gates on authentication only. Privilege is not considered here;
// admin-only callers check Session.IsAdmin after an Allowed decision.
func Decide(s Session) Decision {
	if s.Loading {
		return DecisionPending
	}
	if s.CurrentUser == nil {
		return DecisionDenied
	}
	return DecisionAllowed
}
