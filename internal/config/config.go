package config

import (
	"log"

	"gopkg.in/yaml.v3"

	"milestone-service/pkg/config"
)

type Config struct {
	Server       config.ServerConfig       `yaml:"server"`
	DB           config.DBConfig           `yaml:"db"`
	MQ           config.MQConfig           `yaml:"mq"`
	Redis        config.RedisConfig        `yaml:"redis"`
	Sweep        config.SweepConfig        `yaml:"sweep"`
	Escrow       config.CollaboratorConfig `yaml:"escrow"`
	Identity     config.CollaboratorConfig `yaml:"identity"`
	ServiceToken config.ServiceTokenConfig `yaml:"service_token"`
}

// Load reads the layered YAML configuration and applies environment variable
// overrides. Exits on failure: a service with no config cannot do anything
// useful.
func Load() *Config {
	env := config.GetConfigEnv()
	configDir := config.GetEnv("CONFIG_DIR", "config")

	cfgMap, err := config.LoadConfig(env, configDir)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	var cfg Config
	cfgData, err := yaml.Marshal(cfgMap)
	if err != nil {
		log.Fatalf("failed to marshal config: %v", err)
	}
	if err := yaml.Unmarshal(cfgData, &cfg); err != nil {
		log.Fatalf("failed to unmarshal config: %v", err)
	}

	config.OverrideServerFromEnv(&cfg.Server)
	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideServiceTokenFromEnv(&cfg.ServiceToken)
	if url := config.GetEnv("ESCROW_SERVICE_URL", ""); url != "" {
		cfg.Escrow.BaseURL = url
	}
	if url := config.GetEnv("IDENTITY_SERVICE_URL", ""); url != "" {
		cfg.Identity.BaseURL = url
	}

	return &cfg
}
