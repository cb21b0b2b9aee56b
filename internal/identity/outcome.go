package identity

import (
	"context"
	"encoding/json"
	"net/http"
)

// OutcomeKind tags the control-flow result of a require-auth call.
type OutcomeKind int

const (
	// Continue means the caller proceeds with Outcome.Identity.
	Continue OutcomeKind = iota
	// Redirect means the caller issues an HTTP redirect to Outcome.Location.
	Redirect
	// JSONError means the caller writes Outcome.Body with its status code.
	JSONError
)

// ErrorBody is the structured 401 payload returned to API callers.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// Outcome is an explicit control-transfer value: exactly one of the three
// kinds holds. The outermost handler performs the actual transfer; nothing
// in this package writes responses or uses non-local exits.
type Outcome struct {
	Kind     OutcomeKind
	Identity Identity
	Location string
	Body     *ErrorBody
}

// Apply performs the control transfer on w and reports whether the request
// was terminated. Handlers call it and return early on true.
func (o Outcome) Apply(w http.ResponseWriter, r *http.Request) bool {
	switch o.Kind {
	case Redirect:
		http.Redirect(w, r, o.Location, http.StatusFound)
		return true
	case JSONError:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(o.Body.Code)
		_ = json.NewEncoder(w).Encode(o.Body)
		return true
	default:
		return false
	}
}

type contextKey string

// identityKey stores the resolved identity on the request context.
const identityKey contextKey = "auth.identity"

// WithIdentity stores a resolved identity on the context for downstream
// handlers.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext returns the identity stored by WithIdentity, or
// Unauthenticated when absent.
func FromContext(ctx context.Context) Identity {
	id, ok := ctx.Value(identityKey).(Identity)
	if !ok {
		return Unauthenticated
	}
	return id
}
