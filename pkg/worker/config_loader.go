package worker

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"selfpm/internal"
)

type fileConfig struct {
	Watermill SubscriberConfig `yaml:"watermill"`
	Rules     []struct {
		Emit internal.EmitList `yaml:"emit"`
	} `yaml:"rules"`
}

// LoadSubscriberConfig reads the watermill section of the server config so
// that a worker consumes from the brokers the server publishes to.
func LoadSubscriberConfig(path string) (SubscriberConfig, error) {
	cfg, err := readFileConfig(path)
	if err != nil {
		return SubscriberConfig{}, err
	}
	applySubscriberDefaults(&cfg.Watermill)
	return cfg.Watermill, nil
}

// LoadTopicsFromConfig returns every topic the server's rules emit, once.
func LoadTopicsFromConfig(path string) ([]string, error) {
	cfg, err := readFileConfig(path)
	if err != nil {
		return nil, err
	}
	var topics []string
	seen := make(map[string]struct{})
	for _, rule := range cfg.Rules {
		for _, topic := range rule.Emit {
			topic = strings.TrimSpace(topic)
			if topic == "" {
				continue
			}
			if _, ok := seen[topic]; ok {
				continue
			}
			seen[topic] = struct{}{}
			topics = append(topics, topic)
		}
	}
	return topics, nil
}

func readFileConfig(path string) (fileConfig, error) {
	var cfg fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "read %s", path)
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse %s", path)
	}
	return cfg, nil
}

func applySubscriberDefaults(cfg *SubscriberConfig) {
	if cfg.Driver == "" && len(cfg.Drivers) == 0 {
		cfg.Driver = "gochannel"
	}
	if cfg.GoChannel.OutputChannelBuffer == 0 {
		cfg.GoChannel.OutputChannelBuffer = 64
	}
	if cfg.NATS.ClientIDSuffix == "" {
		cfg.NATS.ClientIDSuffix = "-worker"
	}
}
