// Package discovery registers services with a Consul agent.
package discovery

import (
	"fmt"
	"net"
	"strconv"

	consulapi "github.com/hashicorp/consul/api"
	"github.com/rs/zerolog"
)

// Registration describes the service instance announced to Consul.
type Registration struct {
	ServiceName string
	Host        string
	Port        int
	HealthPath  string
	Tags        []string
}

// ServiceID returns the unique id of this instance.
func (r Registration) ServiceID() string {
	return fmt.Sprintf("%s-%s-%d", r.ServiceName, r.Host, r.Port)
}

func (r Registration) agentRegistration() *consulapi.AgentServiceRegistration {
	return &consulapi.AgentServiceRegistration{
		ID:      r.ServiceID(),
		Name:    r.ServiceName,
		Address: r.Host,
		Port:    r.Port,
		Tags:    r.Tags,
		Check: &consulapi.AgentServiceCheck{
			HTTP:                           "http://" + net.JoinHostPort(r.Host, strconv.Itoa(r.Port)) + r.HealthPath,
			Interval:                       "10s",
			Timeout:                        "2s",
			DeregisterCriticalServiceAfter: "1m",
		},
	}
}

// ConsulRegistry registers and deregisters service instances.
type ConsulRegistry struct {
	client *consulapi.Client
	logger *zerolog.Logger
}

// NewConsulRegistry creates a registry talking to the agent at addr.
func NewConsulRegistry(addr string, logger *zerolog.Logger) (*ConsulRegistry, error) {
	cfg := consulapi.DefaultConfig()
	cfg.Address = addr

	client, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consul client: %w", err)
	}

	return &ConsulRegistry{client: client, logger: logger}, nil
}

// Register announces the instance with an HTTP health check.
func (c *ConsulRegistry) Register(reg Registration) error {
	if err := c.client.Agent().ServiceRegister(reg.agentRegistration()); err != nil {
		return fmt.Errorf("failed to register service %s: %w", reg.ServiceName, err)
	}

	c.logger.Info().Str("service_id", reg.ServiceID()).Msg("registered with consul")
	return nil
}

// Deregister removes the instance from the catalog.
func (c *ConsulRegistry) Deregister(reg Registration) error {
	if err := c.client.Agent().ServiceDeregister(reg.ServiceID()); err != nil {
		return fmt.Errorf("failed to deregister service %s: %w", reg.ServiceName, err)
	}

	c.logger.Info().Str("service_id", reg.ServiceID()).Msg("deregistered from consul")
	return nil
}
