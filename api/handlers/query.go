package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aiser/queryengine/api"
	"github.com/aiser/queryengine/orchestrator"
	"github.com/aiser/queryengine/ratequota"
	"github.com/aiser/queryengine/streaming"
	"github.com/aiser/queryengine/types"
)

// estimatedQueryCreditCost is the conservative credit estimate charged at
// admission time, before the workflow has run and the actual token spend is
// known. The orchestrator debits the tenant's real usage on completion
// (ratequota.CreditsForUsage); this estimate only gates entry so a tenant at
// the edge of its quota can't admit a request it can't possibly afford.
const estimatedQueryCreditCost = 1

// QueryHandler implements the C12 public request surface: identity/plan
// resolution, rate-limit and quota admission, and delegating to the
// orchestrator for both the synchronous and streaming query endpoints.
type QueryHandler struct {
	Identity     api.IdentityResolver
	Tenants      api.TenantStore
	RateLimiter  ratequota.Limiter
	RateLimits   ratequota.Limits
	Quota        *ratequota.QuotaManager
	Orchestrator *orchestrator.Orchestrator
	Logger       *zap.Logger

	// DialectFor resolves a data source ID to its SQL dialect; nil or a
	// miss defaults to "postgres", matching types.WorkflowState.Dialect's
	// documented default.
	DialectFor func(dataSourceID string) string
}

func (h *QueryHandler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

// admission resolves identity/tenant, enforces the feature gate, and admits
// the request through the rate limiter and quota manager. It writes
// rate-limit response headers on every path, including denial.
func (h *QueryHandler) admission(w http.ResponseWriter, r *http.Request, req api.QueryRequest) (types.Tenant, types.UserRef, bool) {
	ctx := r.Context()

	identity, err := h.Identity.Resolve(r)
	if err != nil {
		WriteErrorMessage(w, types.ErrUnauthorized, err.Error(), h.logger())
		return types.Tenant{}, types.UserRef{}, false
	}

	tenant, err := h.Tenants.LoadTenant(ctx, identity.TenantID)
	if err != nil {
		WriteErrorMessage(w, types.ErrInternalError, "failed to resolve tenant: "+err.Error(), h.logger())
		return types.Tenant{}, types.UserRef{}, false
	}

	if feature := api.RequiredFeatureForMode(req.AnalysisMode); feature != "" && !api.HasFeature(tenant, feature) {
		WriteErrorMessage(w, types.ErrForbidden, "plan does not include feature: "+feature, h.logger())
		return types.Tenant{}, types.UserRef{}, false
	}

	limits := h.RateLimits
	if (limits == ratequota.Limits{}) {
		limits = ratequota.DefaultLimits()
	}
	rl, err := h.RateLimiter.Allow(ctx, identity.TenantID, limits)
	if err != nil {
		h.logger().Warn("rate limiter error, admitting request", zap.Error(err))
	} else {
		writeRateLimitHeaders(w, limits, rl)
		if !rl.Allowed {
			WriteErrorMessage(w, types.ErrRateLimited, "rate limit exceeded", h.logger())
			return types.Tenant{}, types.UserRef{}, false
		}
	}

	if h.Quota != nil {
		qc := h.Quota.Check(tenant, estimatedQueryCreditCost)
		if !qc.Allowed {
			WriteErrorMessage(w, types.ErrQuotaExceeded, "monthly AI-credit quota exhausted", h.logger())
			return types.Tenant{}, types.UserRef{}, false
		}
	}

	return tenant, identity.UserRef, true
}

func writeRateLimitHeaders(w http.ResponseWriter, limits ratequota.Limits, rl ratequota.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limits.PerMinute))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(rl.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(rl.ResetAt.Unix(), 10))
	if !rl.Allowed {
		w.Header().Set("Retry-After", strconv.Itoa(int(rl.RetryAfter.Seconds()+0.999)))
	}
}

func (h *QueryHandler) newWorkflowState(req api.QueryRequest, tenant types.Tenant, user types.UserRef) *types.WorkflowState {
	mode := req.AnalysisMode
	if mode == "" {
		mode = types.AnalysisStandard
	}
	dialect := ""
	if req.DataSourceID != "" && h.DialectFor != nil {
		dialect = h.DialectFor(req.DataSourceID)
	}
	return &types.WorkflowState{
		RequestID:      uuid.NewString(),
		ConversationID: req.ConversationID,
		UserRef:        user,
		Tenant:         tenant,
		Query:          req.Query,
		DataSourceID:   req.DataSourceID,
		Dialect:        dialect,
		AnalysisMode:   mode,
		Stage:          types.StageReceived,
	}
}

// HandleQuery serves POST /v1/queries: it runs the workflow to completion
// and returns a single JSON envelope.
func (h *QueryHandler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	var req api.QueryRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		WriteErrorMessage(w, types.ErrInvalidRequest, "invalid request body: "+err.Error(), h.logger())
		return
	}
	if req.Query == "" {
		WriteErrorMessage(w, types.ErrInvalidRequest, "query is required", h.logger())
		return
	}

	tenant, user, ok := h.admission(w, r, req)
	if !ok {
		return
	}

	ctx := r.Context()
	sess := streaming.NewSession(ctx, streaming.Config{})
	state := h.newWorkflowState(req, tenant, user)

	final, runErr := h.runAndDrain(ctx, sess, state)
	WriteJSON(w, statusForResult(final, runErr), buildEnvelope(req.Query, final, runErr))
}

// runAndDrain runs the orchestrator in a goroutine while draining the
// session's frames so Emit never blocks on a consumer that isn't reading
// yet, and returns once the run has fully completed.
func (h *QueryHandler) runAndDrain(ctx context.Context, sess *streaming.Session, state *types.WorkflowState) (*types.WorkflowState, error) {
	type outcome struct {
		state *types.WorkflowState
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		st, err := h.Orchestrator.Run(ctx, sess, state)
		sess.Close()
		done <- outcome{st, err}
	}()

	for range sess.Frames() {
		// Non-streaming callers only need the final state; frames are drained
		// here purely to keep the bounded channel from blocking the run.
	}
	o := <-done
	return o.state, o.err
}

func statusForResult(state *types.WorkflowState, runErr error) int {
	if runErr == nil {
		return http.StatusOK
	}
	if state != nil && state.Error != nil {
		return httpStatusForClassified(state.Error)
	}
	return http.StatusInternalServerError
}

func buildEnvelope(query string, state *types.WorkflowState, runErr error) api.QueryResponse {
	if runErr != nil || state == nil || state.CriticalFailure {
		resp := api.QueryResponse{Success: false, Query: query}
		if state != nil && state.Error != nil {
			resp.Error = state.Error.Message
			resp.ClassifiedError = state.Error
		} else if runErr != nil {
			resp.Error = runErr.Error()
		}
		return resp
	}

	return api.QueryResponse{
		Success:         true,
		Query:           query,
		Analysis:        state.Narration,
		EChartsConfig:   state.EChartsConfig,
		Insights:        state.Insights,
		Recommendations: state.Recommendations,
		QueryResult:     state.QueryResult,
		ExecutionMeta: &api.ExecutionMetadataView{
			ExecutionTimeMs: time.Since(state.ExecutionMetadata.StartedAt).Milliseconds(),
			Status:          "complete",
			Stage:           state.Stage,
		},
		Progress: &api.ProgressView{Percentage: state.Progress.Percentage, Message: state.Progress.Message},
		AIEngine: "aiser-queryengine",
	}
}

// HandleStream serves POST /v1/queries/stream: a line-delimited JSON stream
// of progress/result frames, flushed as each one is emitted.
func (h *QueryHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	var req api.QueryRequest
	if err := DecodeJSONBody(w, r, &req); err != nil {
		WriteErrorMessage(w, types.ErrInvalidRequest, "invalid request body: "+err.Error(), h.logger())
		return
	}
	if req.Query == "" {
		WriteErrorMessage(w, types.ErrInvalidRequest, "query is required", h.logger())
		return
	}

	tenant, user, ok := h.admission(w, r, req)
	if !ok {
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		WriteErrorMessage(w, types.ErrInternalError, "streaming unsupported by this response writer", h.logger())
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	sess := streaming.NewSession(ctx, streaming.Config{BufferSize: 64, Policy: streaming.DropOldestProgress})
	state := h.newWorkflowState(req, tenant, user)

	done := make(chan error, 1)
	go func() {
		_, err := h.Orchestrator.Run(ctx, sess, state)
		sess.Close()
		done <- err
	}()

	bw := bufio.NewWriter(w)
	for frame := range sess.Frames() {
		select {
		case <-r.Context().Done():
			sess.Cancel()
			return
		default:
		}
		if err := writeFrame(bw, frame); err != nil {
			h.logger().Warn("streaming client write failed", zap.Error(err))
			sess.Cancel()
			return
		}
		flusher.Flush()
	}
	<-done
}

func writeFrame(w *bufio.Writer, f streaming.Frame) error {
	wire := api.StreamFrame{
		Seq:             f.Seq,
		Kind:            string(f.Kind),
		RequestID:       f.RequestID,
		ConversationID:  f.ConversationID,
		Chart:           f.Chart,
		Insights:        f.Insights,
		Recommendations: f.Recommendations,
		Message:         f.Message,
		ClassifiedError: f.ClassifiedErr,
	}
	if f.Progress != nil {
		wire.Progress = &api.ProgressView{Percentage: f.Progress.Percentage, Message: f.Progress.Message}
	}
	b, err := json.Marshal(wire)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	if _, err := w.Write(b); err != nil {
		return err
	}
	if err := w.WriteByte('\n'); err != nil {
		return err
	}
	return w.Flush()
}
