// Package agent implements the fleet AI gateway with one ADK agent per
// suggestion type. Every call is rate limited and bounded by a timeout.
package agent

import (
	"context"
	"fmt"
	"time"

	"dispatch_backend/internal/fleet/ports"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
	"google.golang.org/adk/model"
)

// Config tunes the gateway.
type Config struct {
	Timeout           time.Duration
	RequestsPerMinute int
}

// Gateway implements ports.AIGateway.
type Gateway struct {
	allocator *agentRunner
	router    *agentRunner
	risk      *agentRunner
	scheduler *agentRunner
	limiter   *rate.Limiter
	timeout   time.Duration
}

var _ ports.AIGateway = (*Gateway)(nil)

// NewGateway builds the four agents over one model.
func NewGateway(llm model.LLM, cfg Config) (*Gateway, error) {
	allocator, err := newAgentRunner(llm, "JobAllocator", "Suggests a technician for a job.", allocatorInstruction)
	if err != nil {
		return nil, err
	}
	router, err := newAgentRunner(llm, "RouteOptimizer", "Orders a technician's stops.", routeInstruction)
	if err != nil {
		return nil, err
	}
	risk, err := newAgentRunner(llm, "ScheduleRiskAnalyst", "Predicts delay for a technician's next job.", riskInstruction)
	if err != nil {
		return nil, err
	}
	scheduler, err := newAgentRunner(llm, "ScheduleAdvisor", "Proposes appointment slots.", scheduleInstruction)
	if err != nil {
		return nil, err
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	limit := rate.Inf
	burst := 1
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Limit(float64(cfg.RequestsPerMinute) / 60.0)
		burst = max(1, cfg.RequestsPerMinute/10)
	}

	return &Gateway{
		allocator: allocator,
		router:    router,
		risk:      risk,
		scheduler: scheduler,
		limiter:   rate.NewLimiter(limit, burst),
		timeout:   cfg.Timeout,
	}, nil
}

// call waits for a rate-limit slot and runs the agent under the timeout.
func (g *Gateway) call(ctx context.Context, r *agentRunner, companyID uuid.UUID, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%s: rate limit: %w", r.appName, err)
	}
	return r.run(ctx, companyID, prompt)
}

// Allocate implements ports.AIGateway.
func (g *Gateway) Allocate(ctx context.Context, req ports.AllocationRequest) (ports.AllocationSuggestion, error) {
	prompt, err := buildAllocationPrompt(req)
	if err != nil {
		return ports.AllocationSuggestion{}, err
	}
	reply, err := g.call(ctx, g.allocator, req.CompanyID, prompt)
	if err != nil {
		return ports.AllocationSuggestion{}, err
	}
	return parseAllocation(reply)
}

// OptimizeRoute implements ports.AIGateway.
func (g *Gateway) OptimizeRoute(ctx context.Context, req ports.RouteRequest) (ports.RoutePlan, error) {
	prompt, err := buildRoutePrompt(req)
	if err != nil {
		return ports.RoutePlan{}, err
	}
	reply, err := g.call(ctx, g.router, req.CompanyID, prompt)
	if err != nil {
		return ports.RoutePlan{}, err
	}
	return parseRoute(reply)
}

// PredictScheduleRisk implements ports.AIGateway.
func (g *Gateway) PredictScheduleRisk(ctx context.Context, req ports.RiskRequest) (ports.RiskEstimate, error) {
	prompt, err := buildRiskPrompt(req)
	if err != nil {
		return ports.RiskEstimate{}, err
	}
	reply, err := g.call(ctx, g.risk, req.CompanyID, prompt)
	if err != nil {
		return ports.RiskEstimate{}, err
	}
	return parseRisk(reply)
}

// SuggestScheduleTime implements ports.AIGateway.
func (g *Gateway) SuggestScheduleTime(ctx context.Context, req ports.ScheduleRequest) ([]ports.ScheduleSuggestion, error) {
	prompt, err := buildSchedulePrompt(req)
	if err != nil {
		return nil, err
	}
	reply, err := g.call(ctx, g.scheduler, req.CompanyID, prompt)
	if err != nil {
		return nil, err
	}
	return parseSchedule(reply)
}

// Disabled is the gateway used when no model is configured. Every call
// reports ErrDisabled, which callers treat as "no suggestion".
type Disabled struct{}

// ErrDisabled is returned by every Disabled call.
var ErrDisabled = fmt.Errorf("AI suggestions are not configured")

func (Disabled) Allocate(context.Context, ports.AllocationRequest) (ports.AllocationSuggestion, error) {
	return ports.AllocationSuggestion{}, ErrDisabled
}

func (Disabled) OptimizeRoute(context.Context, ports.RouteRequest) (ports.RoutePlan, error) {
	return ports.RoutePlan{}, ErrDisabled
}

func (Disabled) PredictScheduleRisk(context.Context, ports.RiskRequest) (ports.RiskEstimate, error) {
	return ports.RiskEstimate{}, ErrDisabled
}

func (Disabled) SuggestScheduleTime(context.Context, ports.ScheduleRequest) ([]ports.ScheduleSuggestion, error) {
	return nil, ErrDisabled
}
