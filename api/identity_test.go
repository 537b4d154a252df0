package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiser/queryengine/types"
)

func TestHeaderIdentityResolver_ResolvesFromHeaders(t *testing.T) {
	r := NewHeaderIdentityResolver()
	req := httptest.NewRequest(http.MethodPost, "/v1/queries", nil)
	req.Header.Set("X-Tenant-ID", "tenant-1")
	req.Header.Set("X-User-ID", "user-1")
	req.Header.Set("X-User-Role", "analyst")

	id, err := r.Resolve(req)
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", id.TenantID)
	assert.Equal(t, "user-1", id.UserRef.ID)
	assert.Equal(t, types.RoleAnalyst, id.UserRef.Role)
}

func TestHeaderIdentityResolver_DefaultsRoleToViewer(t *testing.T) {
	r := NewHeaderIdentityResolver()
	req := httptest.NewRequest(http.MethodPost, "/v1/queries", nil)
	req.Header.Set("X-Tenant-ID", "tenant-1")
	req.Header.Set("X-User-ID", "user-1")

	id, err := r.Resolve(req)
	require.NoError(t, err)
	assert.Equal(t, types.RoleViewer, id.UserRef.Role)
}

func TestHeaderIdentityResolver_MissingTenantHeader(t *testing.T) {
	r := NewHeaderIdentityResolver()
	req := httptest.NewRequest(http.MethodPost, "/v1/queries", nil)
	req.Header.Set("X-User-ID", "user-1")

	_, err := r.Resolve(req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "X-Tenant-ID")
}

func TestHeaderIdentityResolver_MissingUserHeader(t *testing.T) {
	r := NewHeaderIdentityResolver()
	req := httptest.NewRequest(http.MethodPost, "/v1/queries", nil)
	req.Header.Set("X-Tenant-ID", "tenant-1")

	_, err := r.Resolve(req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "X-User-ID")
}

func TestHasFeature(t *testing.T) {
	assert.False(t, HasFeature(types.Tenant{Plan: types.PlanFree}, FeatureDeepAnalysisMode))
	assert.True(t, HasFeature(types.Tenant{Plan: types.PlanPro}, FeatureDeepAnalysisMode))
	assert.True(t, HasFeature(types.Tenant{Plan: types.PlanEnterprise}, FeatureAdvancedAnalytics))
}

func TestRequiredFeatureForMode(t *testing.T) {
	assert.Equal(t, FeatureDeepAnalysisMode, RequiredFeatureForMode(types.AnalysisDeep))
	assert.Equal(t, "", RequiredFeatureForMode(types.AnalysisStandard))
	assert.Equal(t, "", RequiredFeatureForMode(""))
}
