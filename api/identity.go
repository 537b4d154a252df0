package api

import (
	"context"
	"net/http"

	"github.com/aiser/queryengine/types"
)

// Identity is the caller resolved from a request, before tenant/plan data is
// attached.
type Identity struct {
	TenantID string
	UserRef  types.UserRef
}

// IdentityResolver authenticates an inbound request and extracts the caller
// identity. HeaderIdentityResolver is the only implementation this module
// ships; a deployment backed by a session store or SSO provider plugs in its
// own by satisfying this interface.
type IdentityResolver interface {
	Resolve(r *http.Request) (Identity, error)
}

// HeaderIdentityResolver trusts two request headers, X-Tenant-ID and
// X-User-ID, set by an upstream gateway/reverse proxy that has already
// authenticated the caller. This mirrors how the original service's
// lightweight deployments (single-process, behind an internal load
// balancer) resolve identity without a full JWT round trip; a deployment
// that terminates auth at this process instead should provide its own
// IdentityResolver.
type HeaderIdentityResolver struct {
	TenantHeader string
	UserHeader   string
	RoleHeader   string
}

// NewHeaderIdentityResolver builds a HeaderIdentityResolver with the default
// header names.
func NewHeaderIdentityResolver() *HeaderIdentityResolver {
	return &HeaderIdentityResolver{
		TenantHeader: "X-Tenant-ID",
		UserHeader:   "X-User-ID",
		RoleHeader:   "X-User-Role",
	}
}

// ErrMissingIdentity is returned when the required identity headers are absent.
type ErrMissingIdentity struct{ Header string }

func (e *ErrMissingIdentity) Error() string {
	return "missing required identity header: " + e.Header
}

func (h *HeaderIdentityResolver) Resolve(r *http.Request) (Identity, error) {
	tenantID := r.Header.Get(h.TenantHeader)
	if tenantID == "" {
		return Identity{}, &ErrMissingIdentity{Header: h.TenantHeader}
	}
	userID := r.Header.Get(h.UserHeader)
	if userID == "" {
		return Identity{}, &ErrMissingIdentity{Header: h.UserHeader}
	}
	role := types.UserRole(r.Header.Get(h.RoleHeader))
	if role == "" {
		role = types.RoleViewer
	}
	return Identity{TenantID: tenantID, UserRef: types.UserRef{ID: userID, Role: role}}, nil
}

// TenantStore resolves a tenant ID to its current plan/quota state. It is an
// opaque, externally owned collaborator: this module depends only on the
// interface, never on how tenant records are actually persisted.
type TenantStore interface {
	LoadTenant(ctx context.Context, tenantID string) (types.Tenant, error)
}

// Feature names gated by plan tier.
const (
	FeatureAdvancedAnalytics = "advanced_analytics"
	FeatureDeepAnalysisMode  = "deep_analysis_mode"
)

// planFeatures maps each plan to the set of gated features it unlocks, in
// addition to the baseline query flow every plan gets.
var planFeatures = map[types.Plan]map[string]bool{
	types.PlanFree:       {},
	types.PlanPro:        {FeatureAdvancedAnalytics: true, FeatureDeepAnalysisMode: true},
	types.PlanTeam:       {FeatureAdvancedAnalytics: true, FeatureDeepAnalysisMode: true},
	types.PlanEnterprise: {FeatureAdvancedAnalytics: true, FeatureDeepAnalysisMode: true},
}

// HasFeature reports whether tenant's plan unlocks the named feature.
func HasFeature(tenant types.Tenant, feature string) bool {
	return planFeatures[tenant.Plan][feature]
}

// RequiredFeatureForMode returns the feature gating the given analysis mode,
// or "" if the mode is ungated.
func RequiredFeatureForMode(mode types.AnalysisMode) string {
	if mode == types.AnalysisDeep {
		return FeatureDeepAnalysisMode
	}
	return ""
}
