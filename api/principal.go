package api

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Principal kinds. A token is resolved against the direct-lawyer store
// first, then the shared-role user store; admins come from a signed JWT.
const (
	KindSharedUser   = "sharedUser"
	KindDirectLawyer = "directLawyer"
	KindAdmin        = "admin"
)

// Principal is the authenticated actor for a request or socket connection
type Principal struct {
	Kind  string
	ID    primitive.ObjectID
	Email string
	Role  string
	// LawyerID is the lawyer profile id this principal acts as: the
	// principal's own id for direct lawyers, the back-referenced profile
	// for shared-role lawyers, nil otherwise.
	LawyerID *primitive.ObjectID
}

// IsAdmin reports whether the principal is an administrator
func (p Principal) IsAdmin() bool {
	return p.Kind == KindAdmin
}

// ActsForLawyer reports whether the principal acts as the given lawyer profile
func (p Principal) ActsForLawyer(lawyerID primitive.ObjectID) bool {
	return p.LawyerID != nil && *p.LawyerID == lawyerID
}

type principalKey struct{}

// ContextWithPrincipal stores the resolved principal on the request context
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal stored by the auth middleware
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
