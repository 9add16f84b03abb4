// Package keys provisions per-side crypto material for a DryBox run: either
// loaded from scenario-supplied key material, or derived deterministically
// from the master seed via HKDF-SHA256, per spec.md §4.8.
package keys

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// Material holds one side's X25519 key pair plus the peer's public key, once
// known. Priv never leaves memory except indirectly via Pub.
type Material struct {
	Priv       [32]byte
	Pub        [32]byte
	PeerPub    [32]byte
	KeyID      string
	PeerKeyID  string
	hasPeer    bool
	havePeerID bool
}

// KeyIDOf returns the first 8 hex characters of SHA-256(pub), the pure
// function spec.md §3 requires of key_id.
func KeyIDOf(pub [32]byte) string {
	sum := sha256.Sum256(pub[:])
	return hex.EncodeToString(sum[:4])
}

// FromPriv builds a Material from an explicit 32-byte private scalar,
// computing the matching X25519 public key and key_id.
func FromPriv(priv [32]byte) (Material, error) {
	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return Material{}, fmt.Errorf("derive x25519 public key: %w", err)
	}
	m := Material{Priv: priv}
	copy(m.Pub[:], pub)
	m.KeyID = KeyIDOf(m.Pub)
	return m, nil
}

// Derive produces a deterministic 32-byte seed per side via HKDF-SHA256 with
// salt=seed and info="drybox/v1/"+side+"/"+leftSpec+"/"+rightSpec, then
// treats that seed as an X25519 private scalar. Sweeps that vary non-crypto
// scenario parameters (bearer/channel/vocoder) therefore yield identical
// keys, since none of those feed the HKDF info string.
//
// The seed itself doubles as HKDF's input keying material: DryBox's crypto
// material is a test fixture for exercising a peer's handshake plumbing, not
// a security boundary, so there is no separate secret to draw IKM from
// beyond the scenario's own master seed.
func Derive(masterSeed uint64, side, leftSpec, rightSpec string) (Material, error) {
	var saltBuf [8]byte
	binary.BigEndian.PutUint64(saltBuf[:], masterSeed)
	info := "drybox/v1/" + side + "/" + leftSpec + "/" + rightSpec

	reader := hkdf.New(sha256.New, saltBuf[:], saltBuf[:], []byte(info))
	var priv [32]byte
	if _, err := io.ReadFull(reader, priv[:]); err != nil {
		return Material{}, fmt.Errorf("hkdf derive: %w", err)
	}
	// Clamp per X25519 convention so the scalar is always a valid private key.
	priv[0] &= 248
	priv[31] &= 127
	priv[31] |= 64
	return FromPriv(priv)
}

// Load parses explicit key material supplied by the scenario's crypto block.
// Accepted forms, tried in order: hex string, base64 string, or a path to a
// file containing either. 32-byte values are used as-is; 64-byte extended
// keys (seed||pub, a common export format) are truncated to the leading 32
// bytes. Anything else is a malformed-scenario error (exit code 4 upstream).
func Load(raw string) (Material, error) {
	data, err := decodeKeyMaterial(raw)
	if err != nil {
		return Material{}, err
	}
	switch len(data) {
	case 32:
		var priv [32]byte
		copy(priv[:], data)
		return FromPriv(priv)
	case 64:
		var priv [32]byte
		copy(priv[:], data[:32])
		return FromPriv(priv)
	default:
		return Material{}, fmt.Errorf("key material must be 32 or 64 bytes, got %d", len(data))
	}
}

func decodeKeyMaterial(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty key material")
	}
	if b, err := hex.DecodeString(raw); err == nil {
		return b, nil
	}
	if b, err := base64.StdEncoding.DecodeString(raw); err == nil {
		return b, nil
	}
	if fileData, err := os.ReadFile(raw); err == nil {
		return decodeKeyMaterial(string(fileData))
	}
	return nil, fmt.Errorf("key material is neither hex, base64, nor a readable file path")
}

// SetPeer records the peer's public key and its key_id.
func (m *Material) SetPeer(peerPub [32]byte) {
	m.PeerPub = peerPub
	m.PeerKeyID = KeyIDOf(peerPub)
	m.hasPeer = true
	m.havePeerID = true
}

// HasPeer reports whether SetPeer has been called.
func (m Material) HasPeer() bool { return m.hasPeer }
