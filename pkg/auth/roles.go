package auth

import (
	"log/slog"
	"sort"
	"strings"
)

// RolePrefix is prepended to every normalized role name so authorities
// are distinguishable from raw provider role names.
const RolePrefix = "ROLE_"

// defaultRolePrefix marks Keycloak's per-realm composite default role
// ("default-roles-<realm>"), which carries no application meaning.
const defaultRolePrefix = "DEFAULT-ROLES-"

// excludedRoles are Keycloak built-in account roles that every user holds
// and that never grant application permissions. Names are compared after
// normalization (trimmed, uppercased).
var excludedRoles = map[string]struct{}{
	"OFFLINE_ACCESS":       {},
	"UMA_AUTHORIZATION":    {},
	"MANAGE-ACCOUNT":       {},
	"MANAGE-ACCOUNT-LINKS": {},
}

// ExtractRoles collects the application roles a token grants: realm roles
// from the "realm_access" claim plus client roles from the
// "resource_access" entry for the given client id. Each role name is
// trimmed, uppercased, filtered against the provider's built-in account
// roles, prefixed with [RolePrefix], and deduplicated. The result is
// sorted for deterministic output.
//
// Extraction never fails: missing claims, unexpected claim shapes, and
// non-string entries yield an empty (or partial) role set rather than an
// error, so a token with no recognizable roles still authenticates and is
// rejected later by role-gated routes.
func ExtractRoles(tok *Token, clientID string) []string {
	set := make(map[string]struct{})

	addRoles(set, rolesFromAccessClaim(tok.Claim("realm_access"), "realm_access"))
	addRoles(set, clientRoles(tok.Claim("resource_access"), clientID))

	roles := make([]string, 0, len(set))
	for r := range set {
		roles = append(roles, r)
	}
	sort.Strings(roles)
	return roles
}

// addRoles normalizes and filters raw role names into the set.
func addRoles(set map[string]struct{}, raw []string) {
	for _, name := range raw {
		normalized := strings.ToUpper(strings.TrimSpace(name))
		if normalized == "" {
			continue
		}
		if strings.HasPrefix(normalized, defaultRolePrefix) {
			continue
		}
		if _, excluded := excludedRoles[normalized]; excluded {
			continue
		}
		set[RolePrefix+normalized] = struct{}{}
	}
}

// rolesFromAccessClaim extracts the "roles" list from an access claim
// shaped like {"roles": [...]}. Unexpected shapes are logged at debug
// level and yield nil.
func rolesFromAccessClaim(claim any, claimName string) []string {
	if claim == nil {
		return nil
	}
	m, ok := claim.(map[string]any)
	if !ok {
		slog.Debug("auth: access claim has unexpected shape", "claim", claimName)
		return nil
	}
	rawList, ok := m["roles"].([]any)
	if !ok {
		return nil
	}
	roles := make([]string, 0, len(rawList))
	for _, entry := range rawList {
		if s, ok := entry.(string); ok {
			roles = append(roles, s)
		}
	}
	return roles
}

// clientRoles extracts the roles granted under the given client id in the
// "resource_access" claim. Roles for other clients are ignored.
func clientRoles(claim any, clientID string) []string {
	if claim == nil || clientID == "" {
		return nil
	}
	m, ok := claim.(map[string]any)
	if !ok {
		slog.Debug("auth: access claim has unexpected shape", "claim", "resource_access")
		return nil
	}
	return rolesFromAccessClaim(m[clientID], "resource_access."+clientID)
}
