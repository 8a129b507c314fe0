// Package config loads CLI settings from flags, environment and an optional
// config file through viper, and resolves the RPC endpoint and program id.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Abdullah1738/pow-faucet/internal/logger"
	"github.com/Abdullah1738/pow-faucet/offchain/deployments"
	"github.com/Abdullah1738/pow-faucet/offchain/grinder"
	"github.com/Abdullah1738/pow-faucet/offchain/helius"
	"github.com/Abdullah1738/pow-faucet/offchain/solana"
	"github.com/Abdullah1738/pow-faucet/offchain/solanarpc"
	"github.com/Abdullah1738/pow-faucet/protocol"
)

// EnvPrefix namespaces environment overrides, e.g. POW_FAUCET_RPC_URL.
const EnvPrefix = "POW_FAUCET"

// Keys shared by flags, environment and the config file.
const (
	KeyConfig           = "config"
	KeyRPCURL           = "rpc-url"
	KeyProgramID        = "program-id"
	KeyKeypair          = "keypair"
	KeyWorkers          = "workers"
	KeyMaxAttempts      = "max-attempts"
	KeyLogFile          = "log-file"
	KeyLogFormat        = "log-format"
	KeyVerbose          = "verbose"
	KeyLogInterval      = "log-interval"
	KeyDeployments      = "deployments"
	KeyDeployment       = "deployment"
	KeyPriorityFee      = "priority-fee"
	KeyPriorityLevel    = "priority-level"
	KeyComputeUnitLimit = "compute-unit-limit"
	KeyConfirmTimeout   = "confirm-timeout"

	keySolanaRPCURL  = "solana-rpc-url"
	keyHeliusRPCURL  = "helius-rpc-url"
	keyHeliusAPIKey  = "helius-api-key"
	keyHeliusCluster = "helius-cluster"
)

var (
	ErrInvalidWorkers      = errors.New("workers must be positive")
	ErrInvalidLogFormat    = errors.New("log format must be console or json")
	ErrDeploymentsRequired = errors.New("--deployment needs a --deployments registry file")
	ErrInvalidTimeout      = errors.New("confirm timeout must be positive")
)

// Config holds the application configuration.
type Config struct {
	RPCURL    string
	ProgramID string
	Keypair   string

	Workers     int
	MaxAttempts uint64
	LogInterval time.Duration

	LogFile   string
	LogFormat string
	Verbose   bool

	Deployments string
	Deployment  string

	PriorityFee      uint64
	PriorityLevel    string
	ComputeUnitLimit uint32
	ConfirmTimeout   time.Duration

	// Fallback endpoints read from the conventional unprefixed variables.
	SolanaRPCURL  string
	HeliusRPCURL  string
	HeliusAPIKey  string
	HeliusCluster string
}

// NewViper returns a viper instance with defaults and environment bindings.
// Callers bind their command flags onto it before Load.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyKeypair, solana.DefaultKeypairPath())
	v.SetDefault(KeyWorkers, runtime.NumCPU())
	v.SetDefault(KeyMaxAttempts, grinder.DefaultMaxAttempts)
	v.SetDefault(KeyLogFormat, logger.FormatConsole)
	v.SetDefault(KeyLogInterval, 5*time.Second)
	v.SetDefault(KeyConfirmTimeout, 60*time.Second)

	_ = v.BindEnv(keySolanaRPCURL, "SOLANA_RPC_URL")
	_ = v.BindEnv(keyHeliusRPCURL, "HELIUS_RPC_URL")
	_ = v.BindEnv(keyHeliusAPIKey, "HELIUS_API_KEY")
	_ = v.BindEnv(keyHeliusCluster, "HELIUS_CLUSTER")
	return v
}

// Load reads the optional config file named by KeyConfig and builds a
// validated Config.
func Load(v *viper.Viper) (*Config, error) {
	if path := strings.TrimSpace(v.GetString(KeyConfig)); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{
		RPCURL:           strings.TrimSpace(v.GetString(KeyRPCURL)),
		ProgramID:        strings.TrimSpace(v.GetString(KeyProgramID)),
		Keypair:          v.GetString(KeyKeypair),
		Workers:          v.GetInt(KeyWorkers),
		MaxAttempts:      v.GetUint64(KeyMaxAttempts),
		LogInterval:      v.GetDuration(KeyLogInterval),
		LogFile:          v.GetString(KeyLogFile),
		LogFormat:        v.GetString(KeyLogFormat),
		Verbose:          v.GetBool(KeyVerbose),
		Deployments:      v.GetString(KeyDeployments),
		Deployment:       strings.TrimSpace(v.GetString(KeyDeployment)),
		PriorityFee:      v.GetUint64(KeyPriorityFee),
		PriorityLevel:    v.GetString(KeyPriorityLevel),
		ComputeUnitLimit: v.GetUint32(KeyComputeUnitLimit),
		ConfirmTimeout:   v.GetDuration(KeyConfirmTimeout),
		SolanaRPCURL:     strings.TrimSpace(v.GetString(keySolanaRPCURL)),
		HeliusRPCURL:     strings.TrimSpace(v.GetString(keyHeliusRPCURL)),
		HeliusAPIKey:     strings.TrimSpace(v.GetString(keyHeliusAPIKey)),
		HeliusCluster:    strings.TrimSpace(v.GetString(keyHeliusCluster)),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Workers <= 0 {
		return ErrInvalidWorkers
	}
	switch c.LogFormat {
	case logger.FormatConsole, logger.FormatJSON:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.LogFormat)
	}
	if c.Deployment != "" && strings.TrimSpace(c.Deployments) == "" {
		return ErrDeploymentsRequired
	}
	if c.ConfirmTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.ProgramID != "" {
		if _, err := solana.ParsePubkey(c.ProgramID); err != nil {
			return fmt.Errorf("program id: %w", err)
		}
	}
	if c.PriorityLevel != "" {
		if _, err := helius.ParsePriorityLevel(c.PriorityLevel); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) LoggerOptions() logger.Options {
	return logger.Options{Verbose: c.Verbose, Format: c.LogFormat, File: c.LogFile}
}

// Endpoint is where and what the CLI talks to.
type Endpoint struct {
	RPCURL    string
	ProgramID solana.Pubkey
	// Deployment is the registry entry name, when one was selected.
	Deployment string
}

// Resolve picks the RPC URL in order: explicit rpc-url, the selected
// deployment, SOLANA_RPC_URL, HELIUS_RPC_URL, a Helius URL built from
// HELIUS_API_KEY, then public devnet. The program id comes from program-id,
// then the deployment, then the published faucet program.
func (c *Config) Resolve() (Endpoint, error) {
	var dep deployments.Deployment
	if c.Deployment != "" {
		reg, err := deployments.Load(c.Deployments)
		if err != nil {
			return Endpoint{}, err
		}
		if dep, err = reg.FindByName(c.Deployment); err != nil {
			return Endpoint{}, err
		}
	}

	heliusURL, err := c.HeliusURL()
	if err != nil {
		return Endpoint{}, err
	}
	out := Endpoint{
		RPCURL:     firstNonEmpty(c.RPCURL, dep.RPCURL, c.SolanaRPCURL, heliusURL, solanarpc.DefaultDevnetURL),
		Deployment: dep.Name,
	}

	switch {
	case c.ProgramID != "":
		out.ProgramID, err = solana.ParsePubkey(c.ProgramID)
	case dep.FaucetProgramID != "":
		out.ProgramID, err = dep.ProgramID()
	default:
		out.ProgramID, err = solana.ParsePubkey(protocol.FaucetProgramID)
	}
	if err != nil {
		return Endpoint{}, fmt.Errorf("program id: %w", err)
	}
	return out, nil
}

// HeliusURL returns the configured Helius endpoint, or "" when none is set.
func (c *Config) HeliusURL() (string, error) {
	return helius.ResolveURL(c.HeliusRPCURL, c.HeliusAPIKey, helius.Cluster(c.HeliusCluster))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
