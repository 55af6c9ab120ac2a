// Package fleet provides the dispatch domain module: jobs, technicians,
// AI-advised assignment, delay alerts and recurring contracts.
package fleet

import (
	"dispatch_backend/internal/events"
	"dispatch_backend/internal/fleet/assignment"
	"dispatch_backend/internal/fleet/handler"
	"dispatch_backend/internal/fleet/lifecycle"
	"dispatch_backend/internal/fleet/ports"
	"dispatch_backend/internal/fleet/profiles"
	"dispatch_backend/internal/fleet/recurring"
	"dispatch_backend/internal/fleet/repository"
	"dispatch_backend/internal/fleet/risk"
	"dispatch_backend/internal/fleet/scheduling"
	apphttp "dispatch_backend/internal/http"
	"dispatch_backend/platform/config"
	"dispatch_backend/platform/logger"
	"dispatch_backend/platform/validator"

	"github.com/redis/go-redis/v9"
)

// Deps are the collaborators the module is built from.
type Deps struct {
	Store         repository.Store
	Gateway       ports.AIGateway
	Redis         *redis.Client
	EventBus      events.Bus
	Policy        config.DispatchPolicy
	PublicBaseURL string
	Validator     *validator.Validator
	Logger        *logger.Logger
}

// Module represents the fleet domain module.
type Module struct {
	handler    *handler.Handler
	Lifecycle  *lifecycle.Service
	Assignment *assignment.Service
	Risk       *risk.Monitor
	Recurring  *recurring.Service
	Profiles   *profiles.Service
	Scheduling *scheduling.Service
}

// NewModule creates the fleet module with all services wired.
func NewModule(d Deps) *Module {
	lc := lifecycle.New(d.Store, d.Gateway, d.EventBus, d.Policy, d.PublicBaseURL, d.Logger)
	cache := assignment.NewRedisProposalCache(d.Redis, d.Policy.ProposalTTL)
	evaluator := risk.NewEvaluator(d.Store, d.Gateway, d.Policy.EstimatedJobDuration, d.Logger)

	m := &Module{
		Lifecycle:  lc,
		Assignment: assignment.New(d.Store, d.Gateway, lc, cache, d.EventBus, d.Logger),
		Risk:       risk.NewMonitor(evaluator, risk.NewRedisAlertStore(d.Redis), d.Store, d.EventBus, d.Policy, d.Logger),
		Recurring:  recurring.New(d.Store, d.EventBus, d.Logger),
		Profiles:   profiles.New(d.Store, d.EventBus, d.Logger),
		Scheduling: scheduling.New(d.Store, d.Gateway, d.Policy, d.Logger),
	}
	m.handler = handler.New(handler.Services{
		Lifecycle:  m.Lifecycle,
		Assignment: m.Assignment,
		Risk:       m.Risk,
		Recurring:  m.Recurring,
		Profiles:   m.Profiles,
		Scheduling: m.Scheduling,
	}, d.Validator)
	return m
}

// Name returns the module name for logging
func (m *Module) Name() string {
	return "fleet"
}

// RegisterRoutes mounts dispatcher routes and field routes under
// /api/v1/fleet and the capability links under /api/v1/public.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterDispatcherRoutes(ctx.Dispatcher.Group("/fleet"))
	m.handler.RegisterFieldRoutes(ctx.Protected.Group("/fleet"))
	m.handler.RegisterPublicRoutes(ctx.Public)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
