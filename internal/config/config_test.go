package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Abdullah1738/pow-faucet/offchain/solana"
	"github.com/Abdullah1738/pow-faucet/offchain/solanarpc"
	"github.com/Abdullah1738/pow-faucet/protocol"
)

// clearEnv unsets every variable that could leak into resolution.
func clearEnv(t *testing.T) {
	for _, k := range []string{"SOLANA_RPC_URL", "HELIUS_RPC_URL", "HELIUS_API_KEY", "HELIUS_CLUSTER", "POW_FAUCET_RPC_URL", "POW_FAUCET_PROGRAM_ID"} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(NewViper())
	require.NoError(t, err)
	require.Positive(t, cfg.Workers)
	require.Equal(t, uint64(10_000_000), cfg.MaxAttempts)
	require.Equal(t, "console", cfg.LogFormat)
	require.Equal(t, 60*time.Second, cfg.ConfirmTimeout)

	ep, err := cfg.Resolve()
	require.NoError(t, err)
	require.Equal(t, solanarpc.DefaultDevnetURL, ep.RPCURL)
	require.Equal(t, solana.MustParsePubkey(protocol.FaucetProgramID), ep.ProgramID)
}

func TestLoad_PrefixedEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("POW_FAUCET_RPC_URL", "https://rpc.example")
	t.Setenv("POW_FAUCET_WORKERS", "3")
	t.Setenv("POW_FAUCET_CONFIRM_TIMEOUT", "5s")

	cfg, err := Load(NewViper())
	require.NoError(t, err)
	require.Equal(t, 3, cfg.Workers)
	require.Equal(t, 5*time.Second, cfg.ConfirmTimeout)

	ep, err := cfg.Resolve()
	require.NoError(t, err)
	require.Equal(t, "https://rpc.example", ep.RPCURL)
}

func TestResolve_RPCURLOrder(t *testing.T) {
	clearEnv(t)
	t.Setenv("HELIUS_API_KEY", "k")

	cfg, err := Load(NewViper())
	require.NoError(t, err)
	ep, err := cfg.Resolve()
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(ep.RPCURL, "https://devnet.helius-rpc.com"), ep.RPCURL)

	t.Setenv("HELIUS_RPC_URL", "https://helius.example")
	cfg, err = Load(NewViper())
	require.NoError(t, err)
	ep, err = cfg.Resolve()
	require.NoError(t, err)
	require.Equal(t, "https://helius.example", ep.RPCURL)

	t.Setenv("SOLANA_RPC_URL", "https://solana.example")
	cfg, err = Load(NewViper())
	require.NoError(t, err)
	ep, err = cfg.Resolve()
	require.NoError(t, err)
	require.Equal(t, "https://solana.example", ep.RPCURL)
}

func TestResolve_Deployment(t *testing.T) {
	clearEnv(t)
	t.Setenv("SOLANA_RPC_URL", "https://solana.example")
	dir := t.TempDir()
	path := filepath.Join(dir, "deployments.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"schema_version":1,"deployments":[
  {"name":"local","cluster":"localnet","rpc_url":"http://127.0.0.1:8899","faucet_program_id":"11111111111111111111111111111111"}
]}`), 0o600))

	v := NewViper()
	v.Set(KeyDeployments, path)
	v.Set(KeyDeployment, "local")
	cfg, err := Load(v)
	require.NoError(t, err)

	ep, err := cfg.Resolve()
	require.NoError(t, err)
	require.Equal(t, "http://127.0.0.1:8899", ep.RPCURL)
	require.Equal(t, solana.SystemProgramID, ep.ProgramID)
	require.Equal(t, "local", ep.Deployment)

	v.Set(KeyDeployment, "missing")
	cfg, err = Load(v)
	require.NoError(t, err)
	_, err = cfg.Resolve()
	require.Error(t, err)
}

func TestLoad_ConfigFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "pow-faucet.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: 2\nlog-format: json\npriority-fee: 1000\n"), 0o600))

	v := NewViper()
	v.Set(KeyConfig, path)
	cfg, err := Load(v)
	require.NoError(t, err)
	require.Equal(t, 2, cfg.Workers)
	require.Equal(t, "json", cfg.LogFormat)
	require.Equal(t, uint64(1000), cfg.PriorityFee)
}

func TestValidate(t *testing.T) {
	clearEnv(t)

	cases := []struct {
		key  string
		val  any
		want error
	}{
		{KeyWorkers, 0, ErrInvalidWorkers},
		{KeyLogFormat, "xml", ErrInvalidLogFormat},
		{KeyDeployment, "devnet", ErrDeploymentsRequired},
		{KeyConfirmTimeout, "0s", ErrInvalidTimeout},
	}
	for _, tc := range cases {
		v := NewViper()
		v.Set(tc.key, tc.val)
		_, err := Load(v)
		require.ErrorIs(t, err, tc.want, tc.key)
	}

	v := NewViper()
	v.Set(KeyProgramID, "nope")
	_, err := Load(v)
	require.Error(t, err)

	v = NewViper()
	v.Set(KeyPriorityLevel, "urgent")
	_, err = Load(v)
	require.Error(t, err)
}
