// Package cli wires the configuration into the service for the conductor command.
package cli

import (
	"fmt"
	"log/slog"

	"github.com/aretw0/conductor"
	"github.com/aretw0/conductor/internal/config"
	"github.com/aretw0/conductor/internal/logging"
	"github.com/aretw0/conductor/pkg/adapters/agent"
	"github.com/aretw0/conductor/pkg/adapters/file"
	"github.com/aretw0/conductor/pkg/adapters/stack"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/runner"
)

// NewLogger builds the application logger described by cfg.
func NewLogger(cfg config.LogConfig) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewWithOptions(logging.Options{Level: level, Format: cfg.Format}), nil
}

// Options turns the configuration into library options. agents enables the agent
// channel, which only makes sense when tasks travel over a shared broker.
func Options(cfg *config.Config, logger *slog.Logger, agents bool) []conductor.Option {
	templates := file.NewTemplates(cfg.Templates.Dir)
	opts := []conductor.Option{
		conductor.WithLogger(logger),
		conductor.WithWorkflowDir(cfg.Workflows.Dir, cfg.Workflows.Pattern),
		conductor.WithRegistryOverride(cfg.Registry.AllowOverride),
		conductor.WithTemplates(templates),
		conductor.WithUserData(&agent.UserData{
			Templates: templates,
			Broker: agent.BrokerSettings{
				Host:     cfg.Agent.BrokerHost,
				User:     cfg.Agent.BrokerUser,
				Password: cfg.Agent.BrokerPassword,
				VHost:    cfg.Agent.BrokerVHost,
			},
		}),
		conductor.WithRunnerOptions(
			runner.WithConfig(cfg),
			runner.WithMaxPasses(cfg.Workflows.MaxPasses),
			runner.WithFlushTimeout(cfg.Dispatch.FlushTimeout),
			runner.WithQueues(cfg.Queues.Results, cfg.Queues.Reports),
		),
	}
	if cfg.Stack.URL != "" {
		url := cfg.Stack.URL
		opts = append(opts, conductor.WithStack(
			func(task *domain.Task) stack.Backend {
				return stack.NewHTTPBackend(url, task.TenantID(), task.Token())
			},
			stack.WithLogger(logger),
			stack.WithPollInterval(cfg.Stack.PollInterval),
			stack.WithTimeout(cfg.Stack.Timeout),
		))
	}
	if agents {
		opts = append(opts, conductor.WithAgents(
			agent.WithLogger(logger),
			agent.WithResultTimeout(cfg.Agent.ResultTimeout),
		))
	}
	return opts
}

// Build loads the workflows and registers the handlers.
func Build(cfg *config.Config, logger *slog.Logger, agents bool, extra ...conductor.Option) (*conductor.Conductor, error) {
	c, err := conductor.New(append(Options(cfg, logger, agents), extra...)...)
	if err != nil {
		return nil, fmt.Errorf("load workflows: %w", err)
	}
	if len(c.Documents()) == 0 {
		logger.Warn("no workflow documents found", "dir", cfg.Workflows.Dir, "pattern", cfg.Workflows.Pattern)
	}
	return c, nil
}
