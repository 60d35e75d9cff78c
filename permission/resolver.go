// Package permission is the authorization decision engine: it resolves
// whether an authenticated identity may perform the operation named by a
// permission code, walking user → roles → grants with a super-admin
// bypass.
//
// The resolver is fail-closed by contract: any error while consulting the
// role/grant relation is logged and resolved as Deny. This is a security
// invariant, not an implementation detail; it must never be relaxed to
// fail-open for availability reasons.
package permission

import (
	"context"

	"github.com/rs/zerolog"
)

// DefaultSuperAdminRole is the role name that bypasses all checks when no
// override is configured.
const DefaultSuperAdminRole = "super_admin"

// Decision is the outcome of an authorization check.
type Decision int

const (
	// Deny refuses the operation.
	Deny Decision = iota
	// Grant permits the operation.
	Grant
)

// String implements fmt.Stringer.
func (d Decision) String() string {
	if d == Grant {
		return "grant"
	}
	return "deny"
}

// Metrics receives authorization outcome events.
type Metrics interface {
	AuthorizeGranted()
	AuthorizeDenied()
}

type nopMetrics struct{}

func (nopMetrics) AuthorizeGranted() {}
func (nopMetrics) AuthorizeDenied()  {}

// Resolver answers Authorize questions over a RoleStore.
type Resolver struct {
	store          RoleStore
	superAdminRole string
	logger         zerolog.Logger
	metrics        Metrics
}

// NewResolver creates a resolver. An empty superAdminRole selects
// DefaultSuperAdminRole.
func NewResolver(store RoleStore, superAdminRole string, logger zerolog.Logger) *Resolver {
	if superAdminRole == "" {
		superAdminRole = DefaultSuperAdminRole
	}
	return &Resolver{
		store:          store,
		superAdminRole: superAdminRole,
		logger:         logger,
		metrics:        nopMetrics{},
	}
}

// SetMetrics installs an outcome recorder. Must be called before the
// resolver is shared across goroutines.
func (r *Resolver) SetMetrics(m Metrics) {
	if m != nil {
		r.metrics = m
	}
}

// Authorize resolves whether identity may perform the operation named by
// code.
//
// The walk short-circuits: a super-admin role claim grants immediately
// with no store access, and the first role granting code wins. Grant is a
// monotonic OR over roles, so iteration order does not matter.
func (r *Resolver) Authorize(ctx context.Context, identity Identity, code string) Decision {
	if identity.Subject == "" {
		return r.deny()
	}

	if identity.HasRole(r.superAdminRole) {
		return r.grant()
	}

	roles, err := r.store.GetUserRoles(ctx, identity.Subject)
	if err != nil {
		r.logger.Error().Err(err).
			Str("user_id", identity.Subject).
			Str("permission", code).
			Msg("role lookup failed, denying")
		return r.deny()
	}
	if len(roles) == 0 {
		return r.deny()
	}

	for _, role := range roles {
		granted, err := r.store.HasPermission(ctx, role.ID, code)
		if err != nil {
			r.logger.Error().Err(err).
				Str("user_id", identity.Subject).
				Str("role_id", role.ID).
				Str("permission", code).
				Msg("grant lookup failed, denying")
			return r.deny()
		}
		if granted {
			return r.grant()
		}
	}
	return r.deny()
}

// AuthorizePolicy resolves a dynamic policy name. Names outside the
// "permission:" convention are denied here; callers with a default policy
// provider should check ParsePolicyName themselves before delegating.
func (r *Resolver) AuthorizePolicy(ctx context.Context, identity Identity, policyName string) Decision {
	req, ok := ParsePolicyName(policyName)
	if !ok {
		return r.deny()
	}
	return r.Authorize(ctx, identity, req.Code)
}

func (r *Resolver) grant() Decision {
	r.metrics.AuthorizeGranted()
	return Grant
}

func (r *Resolver) deny() Decision {
	r.metrics.AuthorizeDenied()
	return Deny
}
