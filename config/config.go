package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	berr "github.com/next-trace/scg-comms-stack/contract/errors"
	"github.com/spf13/viper"
)

// Transport kinds understood by the stack.
const (
	TransportMemory   = "memory"
	TransportNATS     = "nats"
	TransportRabbitMQ = "rabbitmq"
	TransportKafka    = "kafka"
	TransportMQTT     = "mqtt"
	TransportLibp2p   = "libp2p"
)

// Config holds the stack configuration.
type Config struct {
	AppName        string                   `mapstructure:"app_name"`
	Codec          string                   `mapstructure:"codec"`
	SubjectPrefix  string                   `mapstructure:"subject_prefix"`
	CallTimeout    time.Duration            `mapstructure:"call_timeout"`
	ConnectTimeout time.Duration            `mapstructure:"connect_timeout"`
	DeliveryBuffer int                      `mapstructure:"delivery_buffer"`
	StrictTargets  bool                     `mapstructure:"strict_targets"`
	Transport      TransportConfig          `mapstructure:"transport"`
	Topics         map[string]TopicConfig   `mapstructure:"topics"`
	Services       map[string]ServiceConfig `mapstructure:"services"`
}

// TransportConfig selects and configures the endpoint.
type TransportConfig struct {
	Kind     string         `mapstructure:"kind"`
	Memory   MemoryConfig   `mapstructure:"memory"`
	NATS     NATSConfig     `mapstructure:"nats"`
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Libp2p   Libp2pConfig   `mapstructure:"libp2p"`
}

type MemoryConfig struct {
	Network string `mapstructure:"network"`
}

type NATSConfig struct {
	URL         string        `mapstructure:"url"`
	Name        string        `mapstructure:"name"`
	ConnTimeout time.Duration `mapstructure:"conn_timeout"`
}

type RabbitMQConfig struct {
	URL         string        `mapstructure:"url"`
	Exchange    string        `mapstructure:"exchange"`
	ConnTimeout time.Duration `mapstructure:"conn_timeout"`
}

type KafkaConfig struct {
	Brokers  []string `mapstructure:"brokers"`
	ClientID string   `mapstructure:"client_id"`
}

type MQTTConfig struct {
	Broker      string        `mapstructure:"broker"`
	ClientID    string        `mapstructure:"client_id"`
	QoS         byte          `mapstructure:"qos"`
	ConnTimeout time.Duration `mapstructure:"conn_timeout"`
}

type Libp2pConfig struct {
	ListenAddrs []string `mapstructure:"listen_addrs"`
	Bootstrap   []string `mapstructure:"bootstrap"`
	Rendezvous  string   `mapstructure:"rendezvous"`
	MDNS        bool     `mapstructure:"mdns"`
}

// TopicConfig overrides the subject a topic travels on.
type TopicConfig struct {
	Subject string `mapstructure:"subject"`
}

// ServiceConfig overrides the subject of a service and marks services this process offers.
type ServiceConfig struct {
	Subject string `mapstructure:"subject"`
	Offer   bool   `mapstructure:"offer"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	v := newViper()

	var c Config
	// decoding defaults cannot fail
	_ = v.Unmarshal(&c)

	return c
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("codec", "json")
	v.SetDefault("subject_prefix", "comms")
	v.SetDefault("call_timeout", 5*time.Second)
	v.SetDefault("connect_timeout", 5*time.Second)
	v.SetDefault("delivery_buffer", 256)
	v.SetDefault("strict_targets", false)
	v.SetDefault("transport.kind", TransportMemory)
	v.SetDefault("transport.memory.network", "default")
	v.SetDefault("transport.rabbitmq.exchange", "comms")
	v.SetDefault("transport.mqtt.qos", 1)
	v.SetDefault("transport.libp2p.rendezvous", "comms-stack")

	v.SetEnvPrefix("COMMS")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return v
}

// Load reads the configuration file at path. An empty path yields Default().
// Env var overrides use prefix COMMS_. The format follows the file extension and
// falls back to JSON for extension-less files.
func Load(path string) (Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)

		if filepath.Ext(path) == "" {
			v.SetConfigType("json")
		}

		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, errors.Join(berr.ErrConfiguration, err))
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", errors.Join(berr.ErrConfiguration, err))
	}

	if path != "" {
		if err := restoreNames(path, &c); err != nil {
			return Config{}, err
		}
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}

	return c, nil
}

// Validate rejects configurations the stack cannot run with.
func (c Config) Validate() error {
	var errs []error

	switch c.Codec {
	case "json", "msgpack":
	default:
		errs = append(errs, fmt.Errorf("codec %q unsupported", c.Codec))
	}

	switch c.Transport.Kind {
	case TransportMemory, TransportNATS, TransportRabbitMQ, TransportKafka, TransportMQTT, TransportLibp2p:
	default:
		errs = append(errs, fmt.Errorf("transport kind %q unsupported", c.Transport.Kind))
	}

	if c.SubjectPrefix == "" {
		errs = append(errs, errors.New("subject_prefix must not be empty"))
	}

	if c.CallTimeout <= 0 {
		errs = append(errs, errors.New("call_timeout must be positive"))
	}

	if c.ConnectTimeout <= 0 {
		errs = append(errs, errors.New("connect_timeout must be positive"))
	}

	if c.DeliveryBuffer < 1 {
		errs = append(errs, errors.New("delivery_buffer must be at least 1"))
	}

	if len(errs) == 0 {
		return nil
	}

	return fmt.Errorf("invalid config: %w", errors.Join(append([]error{berr.ErrConfiguration}, errs...)...))
}

// OfferedServices lists the services marked offer: true.
func (c Config) OfferedServices() []string {
	var out []string

	for name, sc := range c.Services {
		if sc.Offer {
			out = append(out, name)
		}
	}

	return out
}
