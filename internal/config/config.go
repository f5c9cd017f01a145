package config

import (
	"net"
	"strconv"
	"time"

	"github.com/jessevdk/go-flags"
)

// Config holds every runtime knob of the worker. The process is headless,
// so environment variables are the primary surface; the long-form flags
// exist for local runs.
type Config struct {
	RedisHost      string `long:"redis-host" env:"REDIS_HOST" default:"localhost" description:"Shared store host"`
	RedisPort      int    `long:"redis-port" env:"REDIS_PORT" default:"6379" description:"Shared store port"`
	RedisDB        int    `long:"redis-db" env:"REDIS_DB" default:"0" description:"Shared store database index"`
	RedisTimeoutMS int    `long:"redis-timeout" env:"REDIS_TIMEOUT" default:"5000" description:"Shared store operation timeout in milliseconds"`

	DefaultProcessorURL  string `long:"processor-default-url" env:"PAYMENT_PROCESSOR_DEFAULT_URL" default:"http://localhost:8001" description:"Base URL of the default (lower fee) processor"`
	FallbackProcessorURL string `long:"processor-fallback-url" env:"PAYMENT_PROCESSOR_FALLBACK_URL" default:"http://localhost:8002" description:"Base URL of the fallback processor"`

	MainQueueKey string `long:"queue-payments-main" env:"REDIS_QUEUE_PAYMENTS_MAIN" default:"rinha-payments-main-queue" description:"List key of the main payment queue"`

	MaxConcurrentPayments int `long:"max-concurrent-payments" env:"WORKER_MAX_CONCURRENT_PAYMENTS" default:"100" description:"Cap on in-flight dispatch tasks"`
	BatchSize             int `long:"batch-size" env:"WORKER_BATCH_SIZE" default:"100" description:"Maximum queue pops per tick"`
	ExecutionDelayMS      int `long:"execution-delay" env:"WORKER_EXECUTION_DELAY" default:"200" description:"Consumer tick period in milliseconds"`

	MaxRetryAttemptsPerDispatch int  `long:"max-retry-attempts-per-dispatch" env:"WORKER_MAX_RETRY_ATTEMPTS_PER_DISPATCH" default:"2" description:"Submit attempts per processor within one dispatch"`
	MaxReenqueueCount           int  `long:"max-reenqueue-count" env:"WORKER_MAX_REENQUEUE_COUNT" default:"3" description:"Re-enqueues before a payment is terminally failed"`
	AssumeHealthyWhenUnknown    bool `long:"assume-healthy-when-unknown" env:"WORKER_ASSUME_HEALTHY_WHEN_UNKNOWN" description:"Try a processor even when its health view is missing"`
	EnableCounters              bool `long:"enable-counters" env:"WORKER_ENABLE_COUNTERS" description:"Also accumulate per-processor aggregate counters"`

	LogLevel string `long:"log-level" env:"LOG_LEVEL" default:"info" description:"Log verbosity"`
}

// Load parses configuration from flags and environment variables.
func Load() (*Config, error) {
	var cfg Config
	parser := flags.NewParser(&cfg, flags.Default)
	if _, err := parser.Parse(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// RedisAddr returns the host:port of the shared store.
func (c *Config) RedisAddr() string {
	return net.JoinHostPort(c.RedisHost, strconv.Itoa(c.RedisPort))
}

// RedisTimeout returns the per-operation store timeout.
func (c *Config) RedisTimeout() time.Duration {
	return time.Duration(c.RedisTimeoutMS) * time.Millisecond
}

// ExecutionDelay returns the consumer tick period.
func (c *Config) ExecutionDelay() time.Duration {
	return time.Duration(c.ExecutionDelayMS) * time.Millisecond
}
