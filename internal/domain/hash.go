package domain

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"github.com/pbaille/happz/internal/codec"
	"github.com/zeebo/blake3"
)

// HashSize is the digest length of every hash type.
const HashSize = 32

// Three-byte type prefixes, so that a hash of one kind never parses as
// another.
var (
	agentPrefix  = [3]byte{0x84, 0x20, 0x24}
	entryPrefix  = [3]byte{0x84, 0x21, 0x24}
	actionPrefix = [3]byte{0x84, 0x29, 0x24}
	dnaPrefix    = [3]byte{0x84, 0x2d, 0x24}
)

// EntryHash addresses an entry by its content.
type EntryHash [HashSize]byte

// ActionHash identifies the write record that created an entry or link.
type ActionHash [HashSize]byte

// AgentPubKey is an agent's ed25519 public key.
type AgentPubKey [HashSize]byte

// DnaHash identifies the code a cell runs.
type DnaHash [HashSize]byte

func (h EntryHash) String() string   { return encodeHash(entryPrefix, h) }
func (h ActionHash) String() string  { return encodeHash(actionPrefix, h) }
func (h AgentPubKey) String() string { return encodeHash(agentPrefix, h) }
func (h DnaHash) String() string     { return encodeHash(dnaPrefix, h) }

func (h EntryHash) IsZero() bool   { return h == EntryHash{} }
func (h ActionHash) IsZero() bool  { return h == ActionHash{} }
func (h AgentPubKey) IsZero() bool { return h == AgentPubKey{} }

func (h EntryHash) MarshalText() ([]byte, error)   { return []byte(h.String()), nil }
func (h ActionHash) MarshalText() ([]byte, error)  { return []byte(h.String()), nil }
func (h AgentPubKey) MarshalText() ([]byte, error) { return []byte(h.String()), nil }
func (h DnaHash) MarshalText() ([]byte, error)     { return []byte(h.String()), nil }

func (h *EntryHash) UnmarshalText(b []byte) error {
	return decodeHash(entryPrefix, "entry hash", string(b), (*[HashSize]byte)(h))
}

func (h *ActionHash) UnmarshalText(b []byte) error {
	return decodeHash(actionPrefix, "action hash", string(b), (*[HashSize]byte)(h))
}

func (h *AgentPubKey) UnmarshalText(b []byte) error {
	return decodeHash(agentPrefix, "agent key", string(b), (*[HashSize]byte)(h))
}

func (h *DnaHash) UnmarshalText(b []byte) error {
	return decodeHash(dnaPrefix, "dna hash", string(b), (*[HashSize]byte)(h))
}

// ParseEntryHash parses the string form of an entry hash.
func ParseEntryHash(s string) (EntryHash, error) {
	var h EntryHash
	err := h.UnmarshalText([]byte(s))
	return h, err
}

// ParseAgentPubKey parses the string form of an agent key.
func ParseAgentPubKey(s string) (AgentPubKey, error) {
	var h AgentPubKey
	err := h.UnmarshalText([]byte(s))
	return h, err
}

func encodeHash(prefix [3]byte, digest [HashSize]byte) string {
	raw := make([]byte, 0, len(prefix)+HashSize)
	raw = append(raw, prefix[:]...)
	raw = append(raw, digest[:]...)
	return "u" + base64.RawURLEncoding.EncodeToString(raw)
}

func decodeHash(prefix [3]byte, kind, s string, out *[HashSize]byte) error {
	if len(s) == 0 || s[0] != 'u' {
		return fmt.Errorf("parse %s %q: missing 'u' prefix", kind, s)
	}
	raw, err := base64.RawURLEncoding.DecodeString(s[1:])
	if err != nil {
		return fmt.Errorf("parse %s %q: %w", kind, s, err)
	}
	if len(raw) != len(prefix)+HashSize {
		return fmt.Errorf("parse %s %q: bad length %d", kind, s, len(raw))
	}
	if !bytes.Equal(raw[:len(prefix)], prefix[:]) {
		return fmt.Errorf("parse %s %q: wrong hash type", kind, s)
	}
	copy(out[:], raw[len(prefix):])
	return nil
}

// Digest is the BLAKE3 digest of b.
func Digest(b []byte) [HashSize]byte {
	return blake3.Sum256(b)
}

// HashEntry hashes the deterministic encoding of v.
func HashEntry(v any) (EntryHash, []byte, error) {
	body, err := codec.Marshal(v)
	if err != nil {
		return EntryHash{}, nil, fmt.Errorf("encode entry: %w", err)
	}
	return EntryHash(Digest(body)), body, nil
}

// HashAction hashes the deterministic encoding of an action record.
func HashAction(v any) (ActionHash, error) {
	body, err := codec.Marshal(v)
	if err != nil {
		return ActionHash{}, fmt.Errorf("encode action: %w", err)
	}
	return ActionHash(Digest(body)), nil
}

// NewDnaHash derives a DNA hash from a DNA name and its zome names.
func NewDnaHash(name string, zomes ...string) DnaHash {
	body, _ := codec.Marshal(append([]string{name}, zomes...))
	return DnaHash(Digest(body))
}
