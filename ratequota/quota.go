package ratequota

import (
	"context"
	"sync"
	"time"

	"github.com/aiser/queryengine/types"
)

// ResourceKind identifies what a quota consumption counts against.
type ResourceKind string

const (
	ResourceAIQuery     ResourceKind = "ai_query"
	ResourceDataTransfer ResourceKind = "data_transfer"
	ResourceStorage      ResourceKind = "storage"
)

// PlanCredits maps a plan tier to its monthly AI-credit allowance; -1 means
// unlimited.
var PlanCredits = map[types.Plan]int64{
	types.PlanFree:       10,
	types.PlanPro:        1000,
	types.PlanTeam:       10000,
	types.PlanEnterprise: -1,
}

// WarnThreshold is the usage fraction (of the plan limit) at which a warning
// metric fires without blocking the request.
const WarnThreshold = 0.8

// QuotaCheck is the outcome of checking whether a tenant may spend `required`
// more credits.
type QuotaCheck struct {
	Allowed    bool
	Remaining  int64
	WarnLevel  bool // crossed WarnThreshold but still allowed
}

// QuotaManager tracks per-tenant credit consumption. It is atomic: Consume
// increments under the manager's single lock so concurrent admissions of the same
// tenant can't both pass a check that only one can actually afford.
type QuotaManager struct {
	mu    sync.Mutex
	usage map[string]int64 // tenantID -> credits used this period
}

// NewQuotaManager creates an empty quota manager.
func NewQuotaManager() *QuotaManager {
	return &QuotaManager{usage: make(map[string]int64)}
}

// limitFor resolves the effective credit limit for a tenant, applying trial
// expiry downgrade to the free-tier limit.
func limitFor(t types.Tenant) int64 {
	if t.TrialEndsAt != nil && time.Now().After(*t.TrialEndsAt) {
		return PlanCredits[types.PlanFree]
	}
	if t.AICreditsLimit != 0 {
		return t.AICreditsLimit
	}
	return PlanCredits[t.Plan]
}

// Check reports whether tenant may spend `required` more credits without
// consuming them.
func (q *QuotaManager) Check(tenant types.Tenant, required int64) QuotaCheck {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.checkLocked(tenant, required)
}

func (q *QuotaManager) checkLocked(tenant types.Tenant, required int64) QuotaCheck {
	limit := limitFor(tenant)
	if limit < 0 {
		return QuotaCheck{Allowed: true, Remaining: -1}
	}
	used := q.usage[tenant.ID]
	remaining := limit - used
	if required > remaining {
		return QuotaCheck{Allowed: false, Remaining: remaining}
	}
	warn := float64(used+required)/float64(limit) >= WarnThreshold
	return QuotaCheck{Allowed: true, Remaining: remaining - required, WarnLevel: warn}
}

// Consume atomically checks and, if allowed, debits `amount` credits from
// tenant's usage. Call this only on a workflow's complete event — never for
// requests denied at admission, and never speculatively before completion.
func (q *QuotaManager) Consume(ctx context.Context, tenant types.Tenant, amount int64) QuotaCheck {
	q.mu.Lock()
	defer q.mu.Unlock()
	check := q.checkLocked(tenant, amount)
	if check.Allowed {
		q.usage[tenant.ID] += amount
	}
	return check
}

// CreditsForUsage computes the AI-credit cost of one completion:
// ceil(tokensIn/1000) + ceil(tokensOut/1000).
func CreditsForUsage(tokensIn, tokensOut int) int64 {
	return ceilDiv(tokensIn, 1000) + ceilDiv(tokensOut, 1000)
}

func ceilDiv(n, d int) int64 {
	if n <= 0 {
		return 0
	}
	return int64((n + d - 1) / d)
}
