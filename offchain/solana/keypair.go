package solana

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var ErrInvalidKeypairFile = errors.New("invalid keypair file")

// Keypair is an ed25519 signing key together with its ledger address.
type Keypair struct {
	PublicKey  Pubkey
	PrivateKey ed25519.PrivateKey
}

func KeypairFromPrivateKey(priv ed25519.PrivateKey) (Keypair, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return Keypair{}, ErrInvalidKeypairFile
	}
	pk, ok := priv.Public().(ed25519.PublicKey)
	if !ok || len(pk) != ed25519.PublicKeySize {
		return Keypair{}, ErrInvalidKeypairFile
	}
	var pub Pubkey
	copy(pub[:], pk)
	return Keypair{PublicKey: pub, PrivateKey: priv}, nil
}

func DefaultKeypairPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ""
	}
	return filepath.Join(home, ".config", "solana", "id.json")
}

// LoadKeypair reads a Solana CLI keypair file: a JSON array of the 64 secret key bytes.
func LoadKeypair(path string) (Keypair, error) {
	if path == "" {
		return Keypair{}, fmt.Errorf("keypair path required")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Keypair{}, err
	}

	var ints []int
	if err := json.Unmarshal(raw, &ints); err != nil {
		return Keypair{}, ErrInvalidKeypairFile
	}
	if len(ints) != ed25519.PrivateKeySize {
		return Keypair{}, ErrInvalidKeypairFile
	}

	key := make([]byte, ed25519.PrivateKeySize)
	for i, v := range ints {
		if v < 0 || v > 255 {
			return Keypair{}, ErrInvalidKeypairFile
		}
		key[i] = byte(v)
	}
	kp, err := KeypairFromPrivateKey(key)
	if err != nil {
		return Keypair{}, err
	}
	if string(kp.PrivateKey[32:]) != string(kp.PublicKey[:]) {
		return Keypair{}, ErrInvalidKeypairFile
	}
	return kp, nil
}

func GenerateKeypair() (Keypair, error) {
	_, sk, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Keypair{}, err
	}
	return KeypairFromPrivateKey(sk)
}

// WriteKeypairFile atomically writes kp in Solana CLI format with 0600 permissions.
// An existing file is only replaced when force is set.
func WriteKeypairFile(path string, kp Keypair, force bool) error {
	path = filepath.Clean(path)
	if path == "." || path == "" {
		return errors.New("keypair path required")
	}
	if len(kp.PrivateKey) != ed25519.PrivateKeySize {
		return ErrInvalidKeypairFile
	}

	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("keypair already exists: %s", path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	ints := make([]int, 0, ed25519.PrivateKeySize)
	for _, b := range kp.PrivateKey {
		ints = append(ints, int(b))
	}
	raw, err := json.Marshal(ints)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-solana-keypair-*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}
