// Package deployments reads a JSON registry of named faucet program
// deployments, so a cluster's RPC endpoint and program id can be selected by name.
package deployments

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Abdullah1738/pow-faucet/offchain/solana"
)

var ErrNotFound = errors.New("deployment not found")

const SchemaVersion = 1

type Registry struct {
	SchemaVersion int          `json:"schema_version"`
	Deployments   []Deployment `json:"deployments"`
}

type Deployment struct {
	Name    string `json:"name"`
	Cluster string `json:"cluster,omitempty"`
	RPCURL  string `json:"rpc_url,omitempty"`

	FaucetProgramID string `json:"faucet_program_id"`
}

// ProgramID parses FaucetProgramID.
func (d Deployment) ProgramID() (solana.Pubkey, error) {
	pk, err := solana.ParsePubkey(d.FaucetProgramID)
	if err != nil {
		return solana.Pubkey{}, fmt.Errorf("deployment %s: faucet_program_id: %w", d.Name, err)
	}
	return pk, nil
}

func Load(path string) (Registry, error) {
	var out Registry
	path = strings.TrimSpace(path)
	if path == "" {
		return Registry{}, errors.New("path required")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Registry{}, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return Registry{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if out.SchemaVersion != 0 && out.SchemaVersion != SchemaVersion {
		return Registry{}, fmt.Errorf("parse %s: unsupported schema_version %d", path, out.SchemaVersion)
	}
	for _, d := range out.Deployments {
		if strings.TrimSpace(d.Name) == "" {
			return Registry{}, fmt.Errorf("parse %s: deployment without name", path)
		}
		if _, err := d.ProgramID(); err != nil {
			return Registry{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return out, nil
}

func (r Registry) FindByName(name string) (Deployment, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Deployment{}, errors.New("name required")
	}
	for _, d := range r.Deployments {
		if d.Name == name {
			return d, nil
		}
	}
	return Deployment{}, fmt.Errorf("%w: %s", ErrNotFound, name)
}
