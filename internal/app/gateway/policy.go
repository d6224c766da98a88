package gateway

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/sitegate/gatekeeper/internal/config"
	"github.com/sitegate/gatekeeper/internal/core/domain"
	"github.com/sitegate/gatekeeper/internal/core/ports"
)

type policyEntry struct {
	prefix  string
	methods []string
	policy  ports.RoutePolicy
}

func (e policyEntry) matches(method, path string) bool {
	if !pathUnder(path, e.prefix) {
		return false
	}
	if len(e.methods) > 0 && !slices.Contains(e.methods, method) {
		return false
	}
	return true
}

// pathUnder matches whole segments only: "/api/admin" and "/api/admin/"
// both cover /api/admin and /api/admin/users but never /api/administrators.
func pathUnder(path, prefix string) bool {
	base := strings.TrimSuffix(prefix, "/")
	if base == "" {
		return strings.HasPrefix(path, "/")
	}
	return path == base || strings.HasPrefix(path, base+"/")
}

// PolicyTable resolves a route policy by longest matching path prefix.
// Entries restricted to methods only match those methods. A request that
// matches nothing gets the fallback policy.
type PolicyTable struct {
	fallback ports.RoutePolicy
	entries  []policyEntry
}

// NewPolicyTable builds the table from config route definitions. schemas
// must hold every schema the definitions reference.
func NewPolicyTable(defs []config.RoutePolicyDef, schemas map[string]ports.SchemaValidator, fallback ports.RoutePolicy) (*PolicyTable, error) {
	pt := &PolicyTable{fallback: fallback, entries: make([]policyEntry, 0, len(defs))}

	for _, def := range defs {
		policy := ports.RoutePolicy{
			LimitClass:       domain.LimitClass(def.LimitClass),
			AllowedRoles:     def.Roles,
			RequireAuth:      def.RequireAuth,
			RequireSignature: def.RequireSignature,
			AuditAccess:      def.Audit,
		}
		if def.Schema != "" {
			validator, ok := schemas[def.Schema]
			if !ok {
				return nil, fmt.Errorf("route %s references unknown schema %q", def.Prefix, def.Schema)
			}
			policy.Schema = validator
		}

		methods := make([]string, len(def.Methods))
		for i, m := range def.Methods {
			methods[i] = strings.ToUpper(m)
		}
		pt.entries = append(pt.entries, policyEntry{prefix: def.Prefix, methods: methods, policy: policy})
	}

	// longest prefix first; method-scoped entries win over catch-alls of the same prefix
	sort.SliceStable(pt.entries, func(i, j int) bool {
		a, b := pt.entries[i], pt.entries[j]
		if len(a.prefix) != len(b.prefix) {
			return len(a.prefix) > len(b.prefix)
		}
		return len(a.methods) > 0 && len(b.methods) == 0
	})

	return pt, nil
}

func (pt *PolicyTable) Resolve(method, path string) ports.RoutePolicy {
	for _, e := range pt.entries {
		if e.matches(method, path) {
			return e.policy
		}
	}
	return pt.fallback
}

func (pt *PolicyTable) Len() int {
	return len(pt.entries)
}
