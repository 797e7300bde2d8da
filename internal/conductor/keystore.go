package conductor

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pbaille/happz/internal/domain"
)

// LoadOrCreateAgent reads the ed25519 seed at path, creating one if the file
// does not exist, and returns the matching agent key.
func LoadOrCreateAgent(path string) (domain.AgentPubKey, error) {
	seed, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		seed = make([]byte, ed25519.SeedSize)
		if _, err := rand.Read(seed); err != nil {
			return domain.AgentPubKey{}, fmt.Errorf("generate seed: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return domain.AgentPubKey{}, fmt.Errorf("create key dir: %w", err)
		}
		if err := os.WriteFile(path, seed, 0600); err != nil {
			return domain.AgentPubKey{}, fmt.Errorf("write seed: %w", err)
		}
	} else if err != nil {
		return domain.AgentPubKey{}, fmt.Errorf("read seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return domain.AgentPubKey{}, fmt.Errorf("read seed %s: bad length %d", path, len(seed))
	}
	return agentFromKey(ed25519.NewKeyFromSeed(seed)), nil
}

// GenerateAgentPubKey returns a fresh agent key.
func GenerateAgentPubKey() (domain.AgentPubKey, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return domain.AgentPubKey{}, fmt.Errorf("generate key: %w", err)
	}
	return agentFromKey(priv), nil
}

func agentFromKey(priv ed25519.PrivateKey) domain.AgentPubKey {
	var agent domain.AgentPubKey
	copy(agent[:], priv.Public().(ed25519.PublicKey))
	return agent
}
