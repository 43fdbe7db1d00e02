package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Mode selects which control plane handles call origination.
type Mode string

const (
	ModeAMI  Mode = "ami"
	ModeREST Mode = "rest"
)

type Config struct {
	Mode     Mode           `mapstructure:"mode"`
	AMI      AMIConfig      `mapstructure:"ami"`
	Dial     DialConfig     `mapstructure:"dial"`
	Database DatabaseConfig `mapstructure:"database"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Service  ServiceConfig  `mapstructure:"service"`
}

type AMIConfig struct {
	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
	User   string `mapstructure:"user"`
	Secret string `mapstructure:"secret"`
}

func (c AMIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type DialConfig struct {
	ChannelPrefix   string `mapstructure:"channel_prefix"`
	DefaultCallerID string `mapstructure:"default_caller_id"`
	OutboundContext string `mapstructure:"outbound_context"`
	CampaignVar     string `mapstructure:"campaign_var"`
	DialContext     string `mapstructure:"dial_context"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type HTTPConfig struct {
	Port    int  `mapstructure:"port"`
	Enabled bool `mapstructure:"enabled"`
}

type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	ClientID    string `mapstructure:"client_id"`
	TopicPrefix string `mapstructure:"topic_prefix"`
}

type ServiceConfig struct {
	LogLevel string `mapstructure:"log_level"`
}

func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	viper.SetDefault("mode", "ami")
	viper.SetDefault("ami.host", "127.0.0.1")
	viper.SetDefault("ami.port", 5038)
	viper.SetDefault("ami.user", "admin")
	viper.SetDefault("dial.channel_prefix", "PJSIP")
	viper.SetDefault("dial.default_caller_id", "anonymous")
	viper.SetDefault("dial.outbound_context", "outbound")
	viper.SetDefault("dial.campaign_var", "CAMPAIGN_ID")
	viper.SetDefault("dial.dial_context", "from-internal")
	viper.SetDefault("http.port", 8080)
	viper.SetDefault("http.enabled", true)
	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.client_id", "pbxbridge")
	viper.SetDefault("mqtt.topic_prefix", "pbx")
	viper.SetDefault("service.log_level", "info")

	viper.SetEnvPrefix("PBXBRIDGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Mode {
	case ModeAMI, ModeREST:
	default:
		return fmt.Errorf("invalid mode %q: must be %q or %q", c.Mode, ModeAMI, ModeREST)
	}

	if c.Mode == ModeAMI && c.AMI.Secret == "" {
		return fmt.Errorf("ami.secret is required in ami mode")
	}

	return nil
}
