package auth

import "context"

// RoleAdmin is the role that may mutate resume versions and upload files.
const RoleAdmin = "ADMIN"

type claimsContextKey struct{}

// ContextWithClaims binds validated session claims to ctx.
func ContextWithClaims(ctx context.Context, claims SessionClaims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// ClaimsFromContext returns the session claims bound to ctx, if any.
func ClaimsFromContext(ctx context.Context) (SessionClaims, bool) {
	if ctx == nil {
		return SessionClaims{}, false
	}
	claims, ok := ctx.Value(claimsContextKey{}).(SessionClaims)
	return claims, ok
}

// RoleAuthorizer grants access when the session bound to the context carries Role.
type RoleAuthorizer struct {
	Role string
}

// NewAdminAuthorizer returns an authorizer requiring the ADMIN role.
func NewAdminAuthorizer() RoleAuthorizer {
	return RoleAuthorizer{Role: RoleAdmin}
}

func (a RoleAuthorizer) IsAdmin(ctx context.Context) bool {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return false
	}
	role := a.Role
	if role == "" {
		role = RoleAdmin
	}
	return claims.HasRole(role)
}
