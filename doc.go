// Package accessguard is the identity security and access-control core for
// concurrent server workloads: permission resolution over a role graph with
// a super-admin bypass, brute-force lockout, composable password-policy
// validation, token revocation, multi-device session admission, and the
// stampede- and penetration-safe cache-aside primitive the rest depends on.
//
// accessguard is a library, not a service. The OAuth/OIDC protocol state
// machine, HTTP routing, and persistence of the user catalog live outside
// it and are reached through narrow interfaces: a permission.RoleStore for
// the role/grant relation (pgstore ships a PostgreSQL implementation), a
// config.Source for hierarchical settings, and a Redis client for the hot
// stores.
//
// Construction goes through [Builder]; the resulting [Guard] is safe for
// concurrent use. Authorization is fail-closed: any uncertainty while
// consulting the role/grant relation resolves to Deny.
package accessguard
