package config

import (
	"fmt"
	"time"

	"github.com/taskwell/taskwell/internal/balancer"
)

// Config is the top-level scheduler configuration. Durations are kept in
// the units the file format uses (seconds or milliseconds) and exposed as
// time.Duration through the accessor methods.
type Config struct {
	// Autoscaler
	MinAgents                 int     `json:"min_agents"`
	MaxAgents                 int     `json:"max_agents"`
	TasksPerAgentThreshold    float64 `json:"tasks_per_agent_threshold"`
	IdleAgentPercentThreshold float64 `json:"idle_agent_percent_threshold"`
	CooldownPeriodS           int     `json:"cooldown_period_s"`

	// Admission control
	MinBatchSize int `json:"min_batch_size"`
	MaxBatchSize int `json:"max_batch_size"`

	// Workers and retries
	HeartbeatTimeoutS int            `json:"heartbeat_timeout_s"`
	MaxRetries        int            `json:"max_retries"`
	WorkerWeights     map[string]int `json:"worker_weights,omitempty"`

	// Dispatch
	BalancerStrategy    string `json:"balancer_strategy"`
	DispatchConcurrency int    `json:"dispatch_concurrency"`
	DispatchIntervalMS  int    `json:"dispatch_interval_ms"`
	SweepIntervalMS     int    `json:"sweep_interval_ms"`
	ScaleIntervalMS     int    `json:"scale_interval_ms"`

	// Journal
	JournalPath string `json:"journal_path"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		MinAgents:              1,
		MaxAgents:              10,
		TasksPerAgentThreshold: 3,
		CooldownPeriodS:        60,
		MinBatchSize:           1,
		MaxBatchSize:           20,
		HeartbeatTimeoutS:      30,
		MaxRetries:             3,
		BalancerStrategy:       balancer.StrategyRoundRobin,
		DispatchConcurrency:    4,
		DispatchIntervalMS:     500,
		SweepIntervalMS:        1000,
		ScaleIntervalMS:        5000,
		JournalPath:            ".taskwell/journal.db",
	}
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	if c.MinAgents < 0 || c.MaxAgents < c.MinAgents {
		return fmt.Errorf("min_agents/max_agents out of order: %d/%d", c.MinAgents, c.MaxAgents)
	}
	if c.MinBatchSize < 0 || c.MaxBatchSize < 1 {
		return fmt.Errorf("batch sizes out of range: min=%d max=%d", c.MinBatchSize, c.MaxBatchSize)
	}
	if c.MinBatchSize > c.MaxBatchSize {
		return fmt.Errorf("min_batch_size %d exceeds max_batch_size %d", c.MinBatchSize, c.MaxBatchSize)
	}
	if c.HeartbeatTimeoutS < 1 {
		return fmt.Errorf("heartbeat_timeout_s must be positive, got %d", c.HeartbeatTimeoutS)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be positive, got %d", c.MaxRetries)
	}
	if !balancer.Known(c.BalancerStrategy) {
		return fmt.Errorf("unknown balancer_strategy %q", c.BalancerStrategy)
	}
	for id, w := range c.WorkerWeights {
		if w < 1 {
			return fmt.Errorf("worker_weights[%q] must be positive, got %d", id, w)
		}
	}
	return nil
}

// CooldownPeriod returns the autoscaler cooldown as a duration.
func (c *Config) CooldownPeriod() time.Duration {
	return time.Duration(c.CooldownPeriodS) * time.Second
}

// HeartbeatTimeout returns the worker liveness window as a duration.
func (c *Config) HeartbeatTimeout() time.Duration {
	return time.Duration(c.HeartbeatTimeoutS) * time.Second
}

// DispatchInterval returns the dispatcher cycle period.
func (c *Config) DispatchInterval() time.Duration {
	return time.Duration(c.DispatchIntervalMS) * time.Millisecond
}

// SweepInterval returns the heartbeat sweep period.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMS) * time.Millisecond
}

// ScaleInterval returns the autoscaler evaluation period.
func (c *Config) ScaleInterval() time.Duration {
	return time.Duration(c.ScaleIntervalMS) * time.Millisecond
}
