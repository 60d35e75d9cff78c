package permission

import "strings"

// PolicyPrefix is the naming convention an HTTP/RPC layer uses to attach a
// permission check to an endpoint: "permission:user.create".
const PolicyPrefix = "permission:"

// Requirement carries the permission code resolved from a dynamic policy
// name.
type Requirement struct {
	Code string
}

// PolicyName formats a permission code as a policy name.
func PolicyName(code string) string {
	return PolicyPrefix + code
}

// ParsePolicyName resolves a policy name of the form "permission:<code>"
// into a Requirement. Any other name returns ok=false so the caller can
// fall back to its default policy provider.
func ParsePolicyName(name string) (Requirement, bool) {
	code, found := strings.CutPrefix(name, PolicyPrefix)
	if !found || code == "" {
		return Requirement{}, false
	}
	return Requirement{Code: code}, true
}
