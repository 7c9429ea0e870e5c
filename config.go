package podwork

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/viant/afs"
	"github.com/viant/podwork/service/coordinator"
	"github.com/viant/podwork/service/dispenser"
	"github.com/viant/podwork/service/executor/command"
	"github.com/viant/podwork/service/messaging"
	"github.com/viant/podwork/service/meta"
	"github.com/viant/podwork/service/pod"
)

// MasterPodIPEnv holds the master address pods pull indices from.
const MasterPodIPEnv = "MASTER_POD_IP"

// Config is a serialisable representation of the runtime configuration. The
// zero-value of a section inherits DefaultConfig values only through LoadConfig.
type Config struct {
	Master    MasterConfig    `yaml:"master"`
	Client    ClientConfig    `yaml:"client"`
	Pod       PodConfig       `yaml:"pod"`
	Broker    BrokerConfig    `yaml:"broker"`
	Storage   StorageConfig   `yaml:"storage"`
	Executor  command.Config  `yaml:"executor"`
	Allocator AllocatorConfig `yaml:"allocator"`
	Log       LogConfig       `yaml:"log"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

// MasterConfig configures the index dispenser
type MasterConfig struct {
	Port int `yaml:"port"`
	// StateURL, when set, persists counters under this afs URL
	StateURL string `yaml:"stateURL"`
}

// ClientConfig configures how pods reach the master
type ClientConfig struct {
	MasterAddress string        `yaml:"masterAddress"`
	RetryDelay    time.Duration `yaml:"retryDelay"`
}

// PodConfig configures a push-protocol pod
type PodConfig struct {
	Processes    int    `yaml:"processes"`
	RequestQueue string `yaml:"requestQueue"`
	Exchange     string `yaml:"exchange"`
}

// BrokerConfig selects the message broker
type BrokerConfig struct {
	Vendor       messaging.Vendor `yaml:"vendor"`
	URL          string           `yaml:"url"`
	BasePath     string           `yaml:"basePath"`
	PollInterval time.Duration    `yaml:"pollInterval"`
}

// StorageConfig locates shared storage
type StorageConfig struct {
	BaseURL string `yaml:"baseURL"`
}

// AllocatorConfig configures the range allocator
type AllocatorConfig struct {
	ExpectedPods int           `yaml:"expectedPods"`
	Timeout      time.Duration `yaml:"timeout"`
}

// LogConfig configures logrus
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig configures OpenTelemetry
type TracingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Output  string `yaml:"output"`
}

// DefaultConfig returns a Config populated with the defaults used by the
// command line. The master address defaults to $MASTER_POD_IP.
func DefaultConfig() *Config {
	return &Config{
		Master: MasterConfig{Port: dispenser.DefaultPort},
		Client: ClientConfig{
			MasterAddress: os.Getenv(MasterPodIPEnv),
			RetryDelay:    dispenser.DefaultRetryDelay,
		},
		Pod: PodConfig{
			Processes:    1,
			RequestQueue: coordinator.DefaultRequestQueue,
			Exchange:     pod.DefaultExchange,
		},
		Broker: BrokerConfig{
			Vendor:       messaging.VendorAMQP,
			BasePath:     "/tmp/podwork/broker",
			PollInterval: 50 * time.Millisecond,
		},
		Executor:  command.DefaultConfig(),
		Allocator: AllocatorConfig{ExpectedPods: 1},
		Log:       LogConfig{Level: "info", Format: "text"},
	}
}

// LoadConfig reads a YAML config from any afs location on top of
// DefaultConfig; ${env.NAME} expressions are expanded first.
func LoadConfig(ctx context.Context, URL string) (*Config, error) {
	cfg := DefaultConfig()
	if err := meta.New(afs.New()).Load(ctx, URL, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", URL, err)
	}
	return cfg, nil
}

// Validate returns an error describing the first invalid setting or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	if c.Master.Port <= 0 || c.Master.Port > 65535 {
		return fmt.Errorf("master.port must be in (0, 65535], got %d", c.Master.Port)
	}
	if c.Client.RetryDelay < 0 {
		return fmt.Errorf("client.retryDelay must be >= 0")
	}
	if c.Pod.Processes <= 0 {
		return fmt.Errorf("pod.processes must be > 0")
	}
	switch c.Broker.Vendor {
	case messaging.VendorMemory, messaging.VendorAMQP:
	case messaging.VendorFs:
		if c.Broker.BasePath == "" {
			return fmt.Errorf("broker.basePath is required for the fs broker")
		}
	default:
		return fmt.Errorf("unsupported broker.vendor: %q", c.Broker.Vendor)
	}
	if c.Allocator.ExpectedPods <= 0 {
		return fmt.Errorf("allocator.expectedPods must be > 0")
	}
	return c.Log.Validate()
}

// Validate checks level and format
func (c *LogConfig) Validate() error {
	if c.Level != "" {
		if _, err := logrus.ParseLevel(c.Level); err != nil {
			return fmt.Errorf("log.level: %w", err)
		}
	}
	switch c.Format {
	case "", "text", "json":
		return nil
	}
	return fmt.Errorf("log.format must be text or json, got %q", c.Format)
}

// Apply configures the standard logrus logger
func (c *LogConfig) Apply() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if c.Level != "" {
		level, _ := logrus.ParseLevel(c.Level)
		logrus.SetLevel(level)
	}
	return nil
}
