package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/zhiyin2021/rocketmq-clients/pkg/client"
)

// Config holds all configuration for the producer command.
type Config struct {
	Verbose bool

	Topic string
	Body  string
	Count int

	MetricsHost string
	MetricsPort int

	Client client.Config
}

// MetricsAddr returns the formatted metrics address.
func (c *Config) MetricsAddr() string {
	return fmt.Sprintf("%s:%d", c.MetricsHost, c.MetricsPort)
}

// buildConfig loads the client config from the environment and overlays the
// CLI flags on top.
func buildConfig(c *cli.Context) (*Config, error) {
	clientCfg, err := client.LoadConfig()
	if err != nil {
		return nil, err
	}
	clientCfg.Arn = c.String("arn")
	clientCfg.Endpoint = c.String("endpoint")
	clientCfg.Group = c.String("group")
	clientCfg.SendMessageTimeout = c.Duration("send-timeout")
	if ak, secret := c.String("access-key"), c.String("access-secret"); ak != "" && secret != "" {
		clientCfg.CredentialsProvider = client.NewStaticCredentialsProvider(ak, secret)
	}

	return &Config{
		Verbose:     c.Bool("verbose"),
		Topic:       c.String("topic"),
		Body:        c.String("body"),
		Count:       c.Int("count"),
		MetricsHost: c.String("metrics-host"),
		MetricsPort: c.Int("metrics-port"),
		Client:      clientCfg,
	}, nil
}
