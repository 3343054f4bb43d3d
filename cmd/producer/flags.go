package main

import (
	"time"

	"github.com/urfave/cli/v2"
)

// sendFlags returns all CLI flags for the send command.
func sendFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Enable verbose logging",
			EnvVars: []string{"VERBOSE"},
			Value:   false,
		},
		&cli.StringFlag{
			Name:     "arn",
			Usage:    "The tenant realm the producer authenticates under",
			EnvVars:  []string{"MQ_ARN"},
			Required: true,
		},
		&cli.StringFlag{
			Name:     "endpoint",
			Aliases:  []string{"e"},
			Usage:    "The name server address (host:port) for route queries",
			EnvVars:  []string{"MQ_ENDPOINT"},
			Required: true,
		},
		&cli.StringFlag{
			Name:     "group",
			Aliases:  []string{"g"},
			Usage:    "The producer group name",
			EnvVars:  []string{"MQ_GROUP"},
			Required: true,
		},
		&cli.StringFlag{
			Name:     "topic",
			Aliases:  []string{"t"},
			Usage:    "The topic to publish to",
			EnvVars:  []string{"MQ_TOPIC"},
			Required: true,
		},
		&cli.StringFlag{
			Name:    "body",
			Aliases: []string{"b"},
			Usage:   "The message body to send",
			Value:   "hello",
		},
		&cli.IntFlag{
			Name:    "count",
			Aliases: []string{"c"},
			Usage:   "The number of messages to send",
			Value:   1,
		},
		&cli.DurationFlag{
			Name:    "send-timeout",
			Usage:   "The per-message send deadline",
			EnvVars: []string{"MQ_SEND_MESSAGE_TIMEOUT"},
			Value:   10 * time.Second,
		},
		&cli.StringFlag{
			Name:    "access-key",
			Usage:   "The access key to sign requests with",
			EnvVars: []string{"MQ_ACCESS_KEY"},
		},
		&cli.StringFlag{
			Name:    "access-secret",
			Usage:   "The access secret to sign requests with",
			EnvVars: []string{"MQ_ACCESS_SECRET"},
		},
		&cli.StringFlag{
			Name:    "metrics-host",
			Usage:   "Host for Prometheus metrics server (empty for all interfaces)",
			EnvVars: []string{"METRICS_HOST"},
			Value:   "",
		},
		&cli.IntFlag{
			Name:    "metrics-port",
			Aliases: []string{"m"},
			Usage:   "Port for Prometheus metrics server",
			EnvVars: []string{"METRICS_PORT"},
			Value:   9090,
		},
	}
}
