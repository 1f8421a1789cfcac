package engine

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/guileen/objectql/sqlgen"
)

// Config holds engine configuration.
type Config struct {
	// Row-level security
	EnableRLS bool

	// Plan cache
	EnablePlanCache bool
	PlanCacheSize   int
	PlanCacheTTL    time.Duration

	// Result cache
	EnableResultCache  bool
	ResultCacheSize    int
	ResultCacheTTL     time.Duration
	MaxResultCacheRows int

	// Parallel child-relationship loading
	EnableParallel    bool
	MaxParallelDegree int

	// Cache sweep cadence
	SweepInterval time.Duration

	// Target SQL dialect
	Dialect sqlgen.Dialect
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		EnableRLS:          true,
		EnablePlanCache:    true,
		PlanCacheSize:      1000,
		PlanCacheTTL:       time.Hour,
		EnableResultCache:  false,
		ResultCacheSize:    100,
		ResultCacheTTL:     5 * time.Minute,
		MaxResultCacheRows: 1000,
		EnableParallel:     true,
		MaxParallelDegree:  4,
		SweepInterval:      5 * time.Minute,
		Dialect:            sqlgen.Postgres,
	}
}

// LoadConfig loads configuration from environment variables on top of the
// defaults.
func LoadConfig() Config {
	config := DefaultConfig()

	loadBool("OBJECTQL_ENABLE_RLS", &config.EnableRLS)
	loadBool("OBJECTQL_ENABLE_PLAN_CACHE", &config.EnablePlanCache)
	loadBool("OBJECTQL_ENABLE_RESULT_CACHE", &config.EnableResultCache)
	loadBool("OBJECTQL_ENABLE_PARALLEL", &config.EnableParallel)

	loadInt("OBJECTQL_PLAN_CACHE_SIZE", &config.PlanCacheSize)
	loadInt("OBJECTQL_RESULT_CACHE_SIZE", &config.ResultCacheSize)
	loadInt("OBJECTQL_MAX_RESULT_CACHE_ROWS", &config.MaxResultCacheRows)
	loadInt("OBJECTQL_MAX_PARALLEL_DEGREE", &config.MaxParallelDegree)

	loadDuration("OBJECTQL_PLAN_CACHE_TTL", &config.PlanCacheTTL)
	loadDuration("OBJECTQL_RESULT_CACHE_TTL", &config.ResultCacheTTL)
	loadDuration("OBJECTQL_SWEEP_INTERVAL", &config.SweepInterval)

	if dialect := os.Getenv("OBJECTQL_DIALECT"); dialect != "" {
		config.Dialect = sqlgen.Dialect(dialect)
	}
	return config
}

// fileConfig is the YAML form of Config; durations are strings.
type fileConfig struct {
	EnableRLS          *bool  `yaml:"enable_rls"`
	EnablePlanCache    *bool  `yaml:"enable_plan_cache"`
	PlanCacheSize      *int   `yaml:"plan_cache_size"`
	PlanCacheTTL       string `yaml:"plan_cache_ttl"`
	EnableResultCache  *bool  `yaml:"enable_result_cache"`
	ResultCacheSize    *int   `yaml:"result_cache_size"`
	ResultCacheTTL     string `yaml:"result_cache_ttl"`
	MaxResultCacheRows *int   `yaml:"max_result_cache_rows"`
	EnableParallel     *bool  `yaml:"enable_parallel"`
	MaxParallelDegree  *int   `yaml:"max_parallel_degree"`
	SweepInterval      string `yaml:"sweep_interval"`
	Dialect            string `yaml:"dialect"`
}

// LoadConfigFile overlays a YAML config file onto base.
func LoadConfigFile(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, err
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return base, fmt.Errorf("parse config %s: %w", path, err)
	}

	config := base
	applyBool(fc.EnableRLS, &config.EnableRLS)
	applyBool(fc.EnablePlanCache, &config.EnablePlanCache)
	applyBool(fc.EnableResultCache, &config.EnableResultCache)
	applyBool(fc.EnableParallel, &config.EnableParallel)
	applyInt(fc.PlanCacheSize, &config.PlanCacheSize)
	applyInt(fc.ResultCacheSize, &config.ResultCacheSize)
	applyInt(fc.MaxResultCacheRows, &config.MaxResultCacheRows)
	applyInt(fc.MaxParallelDegree, &config.MaxParallelDegree)

	for _, d := range []struct {
		raw string
		dst *time.Duration
	}{
		{fc.PlanCacheTTL, &config.PlanCacheTTL},
		{fc.ResultCacheTTL, &config.ResultCacheTTL},
		{fc.SweepInterval, &config.SweepInterval},
	} {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return base, fmt.Errorf("parse duration %q in %s: %w", d.raw, path, err)
		}
		*d.dst = parsed
	}

	if fc.Dialect != "" {
		config.Dialect = sqlgen.Dialect(fc.Dialect)
	}
	return config, nil
}

func loadBool(name string, dst *bool) {
	if raw := os.Getenv(name); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			*dst = v
		}
	}
}

func loadInt(name string, dst *int) {
	if raw := os.Getenv(name); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			*dst = v
		}
	}
}

func loadDuration(name string, dst *time.Duration) {
	if raw := os.Getenv(name); raw != "" {
		if v, err := time.ParseDuration(raw); err == nil && v > 0 {
			*dst = v
		}
	}
}

func applyBool(src *bool, dst *bool) {
	if src != nil {
		*dst = *src
	}
}

func applyInt(src *int, dst *int) {
	if src != nil {
		*dst = *src
	}
}
