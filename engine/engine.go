// Package engine wires the query pipeline together: parse, enforce
// row-level security, plan, generate SQL, execute, and cache.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/guileen/objectql/cache"
	"github.com/guileen/objectql/catalog"
	"github.com/guileen/objectql/driver"
	"github.com/guileen/objectql/logger"
	"github.com/guileen/objectql/optimizer"
	"github.com/guileen/objectql/parser"
	"github.com/guileen/objectql/security"
	"github.com/guileen/objectql/sqlgen"
	"github.com/guileen/objectql/types"
)

// Engine executes DSQL queries against a relational backend.
type Engine struct {
	config    Config
	metadata  catalog.MetadataProvider
	parser    *parser.Parser
	enforcer  *security.Enforcer
	optimizer *optimizer.Optimizer
	generator *sqlgen.Generator
	driver    driver.Driver
	provider  security.Provider

	planCache   *cache.PlanCache
	resultCache *cache.ResultCache
}

// Result is the instrumented execution outcome.
type Result struct {
	Records       []types.Row            `json:"records"`
	Success       bool                   `json:"success"`
	Error         string                 `json:"error,omitempty"`
	ExecutionTime time.Duration          `json:"execution_time"`
	RecordCount   int                    `json:"record_count"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// New creates an engine. The statistics provider may be the same value as
// the metadata provider (catalog.Registry implements both).
func New(config Config, metadata catalog.MetadataProvider, stats catalog.StatisticsProvider, drv driver.Driver, provider security.Provider) *Engine {
	e := &Engine{
		config:      config,
		metadata:    metadata,
		parser:      parser.New(metadata),
		enforcer:    security.NewEnforcer(metadata),
		optimizer:   optimizer.New(metadata, stats),
		generator:   sqlgen.New(metadata, config.Dialect),
		driver:      drv,
		provider:    provider,
		planCache:   cache.NewPlanCache(config.PlanCacheSize, config.PlanCacheTTL),
		resultCache: cache.NewResultCache(config.ResultCacheSize, config.ResultCacheTTL, config.MaxResultCacheRows),
	}
	e.planCache.StartSweeper(config.SweepInterval)
	e.resultCache.StartSweeper(config.SweepInterval)
	return e
}

// Enforcer exposes the RLS enforcer for policy registration and record
// validation.
func (e *Engine) Enforcer() *security.Enforcer {
	return e.enforcer
}

// Close stops the cache sweepers.
func (e *Engine) Close() {
	e.planCache.Close()
	e.resultCache.Close()
}

// plan runs parse -> RLS -> plan-cache -> optimize and returns the plan
// together with its cache key.
func (e *Engine) plan(ctx context.Context, dsql string) (*types.Plan, string, error) {
	query, err := e.parser.Parse(dsql)
	if err != nil {
		return nil, "", err
	}

	sctx, err := e.provider.Current(ctx)
	if err != nil {
		return nil, "", err
	}

	if e.config.EnableRLS {
		query = e.enforcer.Apply(query, sctx)
	}

	hash := cache.QueryHash(query, sctx, e.config.EnableRLS)

	if e.config.EnablePlanCache {
		if plan, ok := e.planCache.Get(hash); ok {
			logger.DebugContext(ctx, "plan cache hit", "plan_id", plan.PlanID)
			return plan, hash, nil
		}
	}

	plan := e.optimizer.Optimize(query)
	if e.config.EnablePlanCache {
		e.planCache.Put(hash, plan)
	}
	return plan, hash, nil
}

// Query parses, plans, and executes a DSQL query, returning untyped rows.
// Row order is exactly the driver's response order for the final select.
func (e *Engine) Query(ctx context.Context, dsql string) ([]types.Row, error) {
	plan, hash, err := e.plan(ctx, dsql)
	if err != nil {
		return nil, err
	}

	if e.config.EnableResultCache {
		if rows, ok := e.resultCache.Get(hash); ok {
			logger.DebugContext(ctx, "result cache hit", "plan_id", plan.PlanID)
			return rows, nil
		}
	}

	rows, err := e.execute(ctx, plan)
	if err != nil {
		return nil, err
	}

	if e.config.EnableResultCache {
		e.resultCache.Put(hash, rows, cache.QueryObjects(plan.Query))
	}
	return rows, nil
}

// execute generates SQL for the plan and runs it, loading child
// relationships separately when the query selects them.
func (e *Engine) execute(ctx context.Context, plan *types.Plan) ([]types.Row, error) {
	mainPlan, children, err := e.splitChildSelects(plan)
	if err != nil {
		return nil, err
	}

	stmt, err := e.generator.Generate(mainPlan)
	if err != nil {
		return nil, err
	}
	logger.DebugContext(ctx, "executing sql", "plan_id", plan.PlanID, "sql", stmt.SQL)

	rows, err := e.driver.Execute(ctx, stmt)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &types.SQLError{SQL: stmt.SQL, Err: err}
	}

	if len(children) > 0 && len(rows) > 0 {
		if err := e.loadChildren(ctx, plan, rows, children); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

// Execute is the instrumented form of Query. Pipeline errors are returned
// inside the result rather than as a Go error.
func (e *Engine) Execute(ctx context.Context, dsql string) *Result {
	start := time.Now()
	requestID := uuid.NewString()
	ctx = logger.WithContextValue(ctx, logger.RequestIDKey, requestID)

	result := &Result{
		Metadata: map[string]interface{}{"request_id": requestID},
	}

	plan, hash, err := e.plan(ctx, dsql)
	if err != nil {
		return result.fail(start, err)
	}
	result.Metadata["plan_id"] = plan.PlanID
	result.Metadata["estimated_cost"] = plan.EstimatedCost

	if e.config.EnableResultCache {
		if rows, ok := e.resultCache.Get(hash); ok {
			result.Metadata["result_cache_hit"] = true
			return result.succeed(start, rows)
		}
	}

	rows, err := e.execute(ctx, plan)
	if err != nil {
		return result.fail(start, err)
	}
	if e.config.EnableResultCache {
		e.resultCache.Put(hash, rows, cache.QueryObjects(plan.Query))
	}
	return result.succeed(start, rows)
}

func (r *Result) succeed(start time.Time, rows []types.Row) *Result {
	r.Records = rows
	r.Success = true
	r.RecordCount = len(rows)
	r.ExecutionTime = time.Since(start)
	return r
}

func (r *Result) fail(start time.Time, err error) *Result {
	r.Error = err.Error()
	r.ExecutionTime = time.Since(start)
	return r
}

// Explain plans a query without executing it.
func (e *Engine) Explain(ctx context.Context, dsql string) (*types.Plan, error) {
	plan, _, err := e.plan(ctx, dsql)
	return plan, err
}

// InvalidateCache drops cached results that depend on the named object and
// clears the plan cache, whose entries may embed stale statistics for it.
func (e *Engine) InvalidateCache(object string) {
	removed := e.resultCache.InvalidateObject(object)
	e.planCache.Clear()
	logger.Info("cache invalidated", "object", object, "results_removed", removed)
}

// ClearCaches empties both caches.
func (e *Engine) ClearCaches() {
	e.planCache.Clear()
	e.resultCache.Clear()
}

// CacheStatistics reports plan cache statistics plus result cache size.
func (e *Engine) CacheStatistics() map[string]interface{} {
	stats := e.planCache.GetStatistics()
	return map[string]interface{}{
		"plan_cache":         stats,
		"result_cache_size":  e.resultCache.Len(),
		"plan_cache_enabled": e.config.EnablePlanCache,
	}
}
