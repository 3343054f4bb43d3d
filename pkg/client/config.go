package client

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Default configuration values.
const (
	DefaultSendMessageTimeout      = 10 * time.Second
	DefaultIoTimeout               = 3 * time.Second
	DefaultMaxAttemptTimes         = 3
	DefaultMessageCompressionLevel = 5
	DefaultIsolationWindow         = 30 * time.Second
)

// Config is the client configuration surface. Producers with the same Arn
// that obtain their instance from the same Manager share one client instance
// (transport, route cache, isolation registry).
type Config struct {
	Arn         string `env:"MQ_ARN"`                                    // Authentication/tenant realm identifier; keys the shared client instance
	Endpoint    string `env:"MQ_ENDPOINT"     envDefault:"127.0.0.1:80"` // Name server address (host:port) for route queries
	Group       string `env:"MQ_GROUP"`                                  // Producer group name
	Namespace   string `env:"MQ_NAMESPACE"`                              // Optional namespace header
	RegionID    string `env:"MQ_REGION_ID"    envDefault:"cn-hangzhou"`  // Region component of the authorization credential
	ServiceName string `env:"MQ_SERVICE_NAME" envDefault:"mq"`           // Service component of the authorization credential
	TenantID    string `env:"MQ_TENANT_ID"`                              // Optional tenant id header

	IoTimeout               time.Duration `env:"MQ_IO_TIMEOUT"                envDefault:"3s"`  // Per-RPC deadline, not the caller-facing send timeout
	SendMessageTimeout      time.Duration `env:"MQ_SEND_MESSAGE_TIMEOUT"      envDefault:"10s"` // Default caller-facing send deadline
	MaxAttemptTimes         int           `env:"MQ_MAX_ATTEMPT_TIMES"         envDefault:"3"`   // Upper bound of RPC attempts per send
	MessageCompressionLevel int           `env:"MQ_MESSAGE_COMPRESSION_LEVEL" envDefault:"5"`   // Gzip level for oversized bodies
	MessageTracingEnabled   bool          `env:"MQ_MESSAGE_TRACING_ENABLED"   envDefault:"false"`
	IsolationWindow         time.Duration `env:"MQ_ISOLATION_WINDOW"          envDefault:"30s"` // TTL before an isolated endpoint is re-admitted

	// CredentialsProvider signs requests when set; a nil provider produces
	// unsigned metadata.
	CredentialsProvider CredentialsProvider `env:"-"`
}

// LoadConfig loads client configuration from environment variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse client config: %w", err)
	}
	return cfg, nil
}

// WithDefaults returns a copy of the config with zero-valued fields replaced
// by defaults. The original config is not mutated.
func (c Config) WithDefaults() Config {
	if c.IoTimeout <= 0 {
		c.IoTimeout = DefaultIoTimeout
	}
	if c.SendMessageTimeout <= 0 {
		c.SendMessageTimeout = DefaultSendMessageTimeout
	}
	if c.MaxAttemptTimes <= 0 {
		c.MaxAttemptTimes = DefaultMaxAttemptTimes
	}
	if c.MessageCompressionLevel <= 0 {
		c.MessageCompressionLevel = DefaultMessageCompressionLevel
	}
	if c.IsolationWindow <= 0 {
		c.IsolationWindow = DefaultIsolationWindow
	}
	return c
}

// Validate checks the fields required to route and group messages.
func (c Config) Validate() error {
	if c.Arn == "" {
		return fmt.Errorf("arn must not be empty")
	}
	if c.Group == "" {
		return fmt.Errorf("group must not be empty")
	}
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint must not be empty")
	}
	return nil
}
