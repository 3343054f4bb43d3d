package client

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/zhiyin2021/rocketmq-clients/internal/metrics"
	"github.com/zhiyin2021/rocketmq-clients/internal/transport"
)

// TransportFactory builds the transport a new client instance dispatches
// RPCs through. Tests substitute a fake here.
type TransportFactory func(cfg Config, log *zap.SugaredLogger) (transport.Transport, error)

// Manager keys client instances by arn so producers in the same
// authentication realm share one transport, route cache and isolation
// registry. Construct one per process and pass it to the producers it
// serves; the keyed-sharing semantics live here, not in a hidden global.
type Manager struct {
	mu        sync.Mutex
	instances map[string]*Instance
	factory   TransportFactory
	metrics   *metrics.Metrics
	log       *zap.SugaredLogger
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithTransportFactory overrides how instance transports are built.
func WithTransportFactory(f TransportFactory) ManagerOption {
	return func(m *Manager) { m.factory = f }
}

// WithMetrics attaches producer metrics to instances created by the manager.
func WithMetrics(metrics *metrics.Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = metrics }
}

// NewManager creates an empty manager.
func NewManager(log *zap.SugaredLogger, opts ...ManagerOption) *Manager {
	m := &Manager{
		instances: make(map[string]*Instance),
		log:       log,
		factory: func(cfg Config, log *zap.SugaredLogger) (transport.Transport, error) {
			return transport.NewGrpcTransport(log), nil
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetClientInstance returns the instance for the config's arn, creating and
// starting it first when absent. Lookup and create are atomic under one
// lock, so for any arn at most one live instance exists.
func (m *Manager) GetClientInstance(cfg Config) (*Instance, error) {
	if cfg.Arn == "" {
		return nil, fmt.Errorf("arn must not be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if inst, ok := m.instances[cfg.Arn]; ok {
		return inst, nil
	}

	tr, err := m.factory(cfg, m.log)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport for arn %s: %w", cfg.Arn, err)
	}
	inst, err := newInstance(cfg, tr, m.metrics, m.log)
	if err != nil {
		return nil, fmt.Errorf("failed to create client instance for arn %s: %w", cfg.Arn, err)
	}
	inst.start()
	m.instances[cfg.Arn] = inst
	return inst, nil
}

// RemoveClientInstance drops the instance for an arn from the manager.
// Removal is cooperative: the instance is not shut down here, and callers
// must not remove an instance still in use by another producer.
func (m *Manager) RemoveClientInstance(arn string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.instances, arn)
}

// Shutdown removes and shuts down every instance. Intended for process exit.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	instances := make([]*Instance, 0, len(m.instances))
	for arn, inst := range m.instances {
		instances = append(instances, inst)
		delete(m.instances, arn)
	}
	m.mu.Unlock()

	for _, inst := range instances {
		inst.Shutdown()
	}
}
