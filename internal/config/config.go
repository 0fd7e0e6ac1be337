package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	BackendSolana  = "solana"
	BackendSandbox = "sandbox"
)

var ErrUnknownBackend = errors.New("unknown ledger backend")

type Config struct {
	LogLevel     string        `yaml:"log-level" env:"LOG_LEVEL" env-default:"info"`
	KeypairPath  string        `yaml:"keypair-path" env:"KEYPAIR_PATH" env-default:"~/.config/solana/id.json"`
	PollInterval time.Duration `yaml:"poll-interval" env:"POLL_INTERVAL" env-default:"2s"`
	Ledger       Ledger        `yaml:"ledger"`
	Redis        Redis         `yaml:"redis"`
}

type Ledger struct {
	Backend    string `yaml:"backend" env:"LEDGER_BACKEND" env-default:"solana"`
	RPCURL     string `yaml:"rpc-url" env:"LEDGER_RPC_URL" env-default:"http://127.0.0.1:8899"`
	ProgramID  string `yaml:"program-id" env:"LEDGER_PROGRAM_ID" env-default:"6kTBYbV3itwchJZmT5wzPoWHiwzFwB5zCoHJmuYdYcVX"`
	Cluster    string `yaml:"cluster" env:"LEDGER_CLUSTER" env-default:"custom"`
	Commitment string `yaml:"commitment" env:"LEDGER_COMMITMENT" env-default:"confirmed"`
}

type Redis struct {
	Host string `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port string `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
}

// Load reads path and applies env overrides on top of it.
func Load(path string) (*Config, error) {
	config := &Config{}

	if err := cleanenv.ReadConfig(path, config); err != nil {
		return nil, fmt.Errorf("unable to load config file: %w", err)
	}

	if err := config.Ledger.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// MustLoad - load all configurations in config.yml file.
func MustLoad(path string) *Config {
	config, err := Load(path)
	if err != nil {
		panic(err)
	}

	return config
}

func (that *Redis) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", that.Host, that.Port)
}

func (that *Ledger) validate() error {
	switch that.Backend {
	case BackendSolana, BackendSandbox:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, that.Backend)
	}
}
