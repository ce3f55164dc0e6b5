package main

import (
	"fmt"

	"github.com/go-logr/logr"

	"github.com/yuriy-kovalchuk/yk-ddns/internal/config"
	"github.com/yuriy-kovalchuk/yk-ddns/internal/dns"
	"github.com/yuriy-kovalchuk/yk-ddns/internal/metrics"
	"github.com/yuriy-kovalchuk/yk-ddns/internal/scheduler"
	"github.com/yuriy-kovalchuk/yk-ddns/internal/source"
	"github.com/yuriy-kovalchuk/yk-ddns/internal/task"
)

const recordComment = "managed by yk-ddns"

// buildTasks creates one task per configured target, sharing the sources.
func buildTasks(cfg *config.Config, log logr.Logger) ([]*task.Task, error) {
	local, err := source.NewLocal(log.WithName("local"), cfg.Local.InterfacePattern, nil)
	if err != nil {
		return nil, err
	}

	var router source.Router
	if cfg.UsesRouter() {
		runner, err := source.NewSSHRunner(cfg.SSHOptions())
		if err != nil {
			return nil, err
		}
		router = source.NewRouter(log.WithName("router"), runner)
		log.Info("router source enabled", "host", cfg.Router.Host, "port", cfg.Router.Port)
	}

	tasks := make([]*task.Task, 0, len(cfg.Targets))
	for _, t := range cfg.Targets {
		opts, err := t.ProviderOptions()
		if err != nil {
			return nil, err
		}
		provider, err := dns.NewProvider(t.Provider, log.WithName("dns-"+t.Provider), opts)
		if err != nil {
			return nil, fmt.Errorf("unable to create DNS provider for %s: %w", t.Name(), err)
		}
		records, err := t.RecordConfigs()
		if err != nil {
			return nil, err
		}

		tk, err := task.New(task.Options{
			Name:     t.Name(),
			Domain:   t.Domain,
			TTL:      t.TTL,
			Comment:  recordComment,
			Provider: provider,
			Local:    local,
			Router:   router,
			Records:  records,
			Policy:   cfg.Policy(t),
			Metrics:  metrics.Recorder{},
			Log:      log.WithName(t.Name()),
		})
		if err != nil {
			return nil, err
		}
		log.Info("configured target", "task", t.Name(), "records", len(records), "proxy", t.ProxyAddress() != "")
		tasks = append(tasks, tk)
	}
	return tasks, nil
}

func newScheduler(tasks []*task.Task, log logr.Logger) *scheduler.Scheduler {
	st := make([]scheduler.Task, len(tasks))
	for i, t := range tasks {
		st[i] = t
	}
	return scheduler.New(log.WithName("scheduler"), st...)
}

func loadConfig(opts *rootOptions, log logr.Logger) (*config.Config, error) {
	path := config.ResolvePath(opts.configPath)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("unable to load config %s: %w", path, err)
	}
	log.Info("loaded config", "path", path, "targets", len(cfg.Targets))
	return cfg, nil
}
