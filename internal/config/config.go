package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type GlobalFlags struct {
	ConfigPath     string
	JSON           bool
	Plain          bool
	Select         string
	ResultsOnly    bool
	EnableCommands string
	Strict         bool
	Timeout        string
	Retries        int
	Chain          string
	RPCURL         string
	RegistryAddr   string
	TokenAddr      string
	ProverURL      string
	KeySource      string
	WalletTimeout  string
	PollAttempts   int
	Yes            bool
}

type Settings struct {
	OutputMode       string
	SelectFields     []string
	ResultsOnly      bool
	EnableCommands   []string
	Strict           bool
	Timeout          time.Duration
	Retries          int
	Chain            string
	RPCURL           string
	RegistryAddr     string
	TokenAddr        string
	ProverURL        string
	KeySource        string
	WalletTimeout    time.Duration
	PollAttempts     int
	AutoConfirm      bool
	AttemptStorePath string
	AttemptLockPath  string
}

type fileConfig struct {
	Output  string `yaml:"output"`
	Strict  *bool  `yaml:"strict"`
	Timeout string `yaml:"timeout"`
	Retries *int   `yaml:"retries"`
	Chain   string `yaml:"chain"`
	RPC     struct {
		URL string `yaml:"url"`
	} `yaml:"rpc"`
	Registry struct {
		Address      string `yaml:"address"`
		TokenAddress string `yaml:"token_address"`
	} `yaml:"registry"`
	Prover struct {
		URL string `yaml:"url"`
	} `yaml:"prover"`
	Signer struct {
		KeySource string `yaml:"key_source"`
	} `yaml:"signer"`
	Submission struct {
		WalletTimeout string `yaml:"wallet_timeout"`
		PollAttempts  *int   `yaml:"poll_attempts"`
		AttemptsPath  string `yaml:"attempts_path"`
		AttemptsLock  string `yaml:"attempts_lock_path"`
	} `yaml:"submission"`
}

func Load(flags GlobalFlags) (Settings, error) {
	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}

	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}

	applyEnv(&settings)

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 10 * time.Second
	}
	if settings.Retries < 0 {
		settings.Retries = 0
	}
	if settings.WalletTimeout <= 0 {
		settings.WalletTimeout = 40 * time.Second
	}
	if settings.PollAttempts <= 0 {
		settings.PollAttempts = 32
	}

	return settings, nil
}

func defaultSettings() (Settings, error) {
	storePath, lockPath, err := defaultStorePaths()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		OutputMode:       "json",
		Timeout:          10 * time.Second,
		Retries:          2,
		Chain:            "sepolia",
		KeySource:        "auto",
		WalletTimeout:    40 * time.Second,
		PollAttempts:     32,
		AttemptStorePath: storePath,
		AttemptLockPath:  lockPath,
	}, nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "registry", "config.yaml"), nil
}

func defaultStorePaths() (string, string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", "", err
		}
		base = filepath.Join(home, ".cache")
	}
	dir := filepath.Join(base, "registry")
	return filepath.Join(dir, "attempts.db"), filepath.Join(dir, "attempts.lock"), nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if cfg.Strict != nil {
		settings.Strict = *cfg.Strict
	}
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return fmt.Errorf("config timeout: %w", err)
		}
		settings.Timeout = d
	}
	if cfg.Retries != nil {
		settings.Retries = *cfg.Retries
	}
	if cfg.Chain != "" {
		settings.Chain = cfg.Chain
	}
	if cfg.RPC.URL != "" {
		settings.RPCURL = cfg.RPC.URL
	}
	if cfg.Registry.Address != "" {
		settings.RegistryAddr = cfg.Registry.Address
	}
	if cfg.Registry.TokenAddress != "" {
		settings.TokenAddr = cfg.Registry.TokenAddress
	}
	if cfg.Prover.URL != "" {
		settings.ProverURL = cfg.Prover.URL
	}
	if cfg.Signer.KeySource != "" {
		settings.KeySource = cfg.Signer.KeySource
	}
	if cfg.Submission.WalletTimeout != "" {
		d, err := time.ParseDuration(cfg.Submission.WalletTimeout)
		if err != nil {
			return fmt.Errorf("config submission.wallet_timeout: %w", err)
		}
		settings.WalletTimeout = d
	}
	if cfg.Submission.PollAttempts != nil {
		settings.PollAttempts = *cfg.Submission.PollAttempts
	}
	if cfg.Submission.AttemptsPath != "" {
		settings.AttemptStorePath = cfg.Submission.AttemptsPath
	}
	if cfg.Submission.AttemptsLock != "" {
		settings.AttemptLockPath = cfg.Submission.AttemptsLock
	}

	return nil
}

func applyEnv(settings *Settings) {
	if v := os.Getenv("REGISTRY_OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if v := os.Getenv("REGISTRY_STRICT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.Strict = b
		}
	}
	if v := os.Getenv("REGISTRY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Timeout = d
		}
	}
	if v := os.Getenv("REGISTRY_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.Retries = n
		}
	}
	if v := os.Getenv("REGISTRY_CHAIN"); v != "" {
		settings.Chain = v
	}
	if v := os.Getenv("REGISTRY_RPC_URL"); v != "" {
		settings.RPCURL = v
	}
	if v := os.Getenv("REGISTRY_ADDRESS"); v != "" {
		settings.RegistryAddr = v
	}
	if v := os.Getenv("REGISTRY_TOKEN_ADDRESS"); v != "" {
		settings.TokenAddr = v
	}
	if v := os.Getenv("REGISTRY_PROVER_URL"); v != "" {
		settings.ProverURL = v
	}
	if v := os.Getenv("REGISTRY_KEY_SOURCE"); v != "" {
		settings.KeySource = v
	}
	if v := os.Getenv("REGISTRY_WALLET_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.WalletTimeout = d
		}
	}
	if v := os.Getenv("REGISTRY_POLL_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.PollAttempts = n
		}
	}
	if v := os.Getenv("REGISTRY_ATTEMPTS_PATH"); v != "" {
		settings.AttemptStorePath = v
	}
	if v := os.Getenv("REGISTRY_ATTEMPTS_LOCK_PATH"); v != "" {
		settings.AttemptLockPath = v
	}
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return fmt.Errorf("cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	if strings.TrimSpace(flags.Select) != "" {
		parts := strings.Split(flags.Select, ",")
		fields := make([]string, 0, len(parts))
		for _, part := range parts {
			f := strings.TrimSpace(part)
			if f != "" {
				fields = append(fields, f)
			}
		}
		settings.SelectFields = fields
	}
	settings.ResultsOnly = flags.ResultsOnly

	if strings.TrimSpace(flags.EnableCommands) != "" {
		parts := strings.Split(flags.EnableCommands, ",")
		allowed := make([]string, 0, len(parts))
		for _, part := range parts {
			v := strings.TrimSpace(part)
			if v != "" {
				allowed = append(allowed, v)
			}
		}
		settings.EnableCommands = allowed
	}

	if flags.Strict {
		settings.Strict = true
	}
	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return fmt.Errorf("parse --timeout: %w", err)
		}
		settings.Timeout = d
	}
	if flags.Retries >= 0 {
		settings.Retries = flags.Retries
	}
	if flags.Chain != "" {
		settings.Chain = flags.Chain
	}
	if flags.RPCURL != "" {
		settings.RPCURL = flags.RPCURL
	}
	if flags.RegistryAddr != "" {
		settings.RegistryAddr = flags.RegistryAddr
	}
	if flags.TokenAddr != "" {
		settings.TokenAddr = flags.TokenAddr
	}
	if flags.ProverURL != "" {
		settings.ProverURL = flags.ProverURL
	}
	if flags.KeySource != "" {
		settings.KeySource = flags.KeySource
	}
	if flags.WalletTimeout != "" {
		d, err := time.ParseDuration(flags.WalletTimeout)
		if err != nil {
			return fmt.Errorf("parse --wallet-timeout: %w", err)
		}
		settings.WalletTimeout = d
	}
	if flags.PollAttempts > 0 {
		settings.PollAttempts = flags.PollAttempts
	}
	if flags.Yes {
		settings.AutoConfirm = true
	}

	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return fmt.Errorf("output must be json or plain")
	}

	return nil
}
