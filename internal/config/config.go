package config

import (
	"github.com/mcuadros/go-defaults"
)

type Config struct {
	MainProxyTarget    string `yaml:"main" default:"http://localhost:8888"`
	ListenAddress      string `yaml:"listen" default:":8080"`
	AdminEndpoint      string `yaml:"admin" default:"mirror"`
	AdminListenAddress string `yaml:"admin-address"`
	Username           string `yaml:"username"`
	Password           string `yaml:"password"`
	PasswordFile       string `yaml:"passwordFile"`
	MaxConnections     int    `yaml:"max-connections" default:"512"`

	MirrorBase       string        `yaml:"mirror-base"`
	MirrorPath       string        `yaml:"mirror-path" default:"/"`
	MirrorMatch      string        `yaml:"mirror-match"`
	MirrorMethods    string        `yaml:"mirror-methods" default:"POST,PUT,PATCH"`
	MirrorJSONOnly   bool          `yaml:"mirror-json-only" default:"true"`
	MirrorAddHeader  bool          `yaml:"mirror-add-header" default:"true"`
	MirrorHeaderName string `yaml:"mirror-header-name" default:"X-Mirror-Correlation-Id"`
	MirrorTimeout    int    `yaml:"mirror-timeout" default:"5"`
	MirrorAsync      bool   `yaml:"mirror-async" default:"true"`
	MirrorWorkers    int           `yaml:"mirror-workers" default:"8"`
	MirrorQueueSize  int           `yaml:"mirror-queue-size" default:"256"`
	MirrorBreaker    bool          `yaml:"mirror-breaker" default:"false"`
	RetryAfter       int           `yaml:"retry-after" default:"1"`
}

func (s *Config) UnmarshalYAML(unmarshal func(interface{}) error) error {
	defaults.SetDefaults(s)

	type cfg Config

	if err := unmarshal((*cfg)(s)); err != nil {
		return err
	}

	return nil
}

func Default() *Config {
	c := &Config{}
	defaults.SetDefaults(c)

	return c
}
