package keys

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveIsDeterministicPerSeed(t *testing.T) {
	a, err := Derive(42, "L", "builtin/echo", "builtin/echo")
	assert.NoError(t, err)
	b, err := Derive(42, "L", "builtin/echo", "builtin/echo")
	assert.NoError(t, err)
	assert.Equal(t, a.Pub, b.Pub)
	assert.Equal(t, a.KeyID, b.KeyID)
}

func TestDeriveDiffersBySideAndSpec(t *testing.T) {
	left, _ := Derive(42, "L", "builtin/echo", "builtin/tone")
	right, _ := Derive(42, "R", "builtin/echo", "builtin/tone")
	assert.NotEqual(t, left.Pub, right.Pub)

	otherSpecs, _ := Derive(42, "L", "builtin/tone", "builtin/echo")
	assert.NotEqual(t, left.Pub, otherSpecs.Pub)
}

func TestKeyIDIsPureFunctionOfPub(t *testing.T) {
	m, err := Derive(7, "L", "a", "b")
	assert.NoError(t, err)
	assert.Equal(t, KeyIDOf(m.Pub), m.KeyID)
}

func TestLoadAccepts32And64ByteHex(t *testing.T) {
	m32, err := Derive(1, "L", "a", "b")
	assert.NoError(t, err)

	hex32 := encodeHex(m32.Priv[:])
	loaded, err := Load(hex32)
	assert.NoError(t, err)
	assert.Equal(t, m32.Pub, loaded.Pub)

	extended := append(append([]byte{}, m32.Priv[:]...), m32.Pub[:]...)
	loadedExt, err := Load(encodeHex(extended))
	assert.NoError(t, err)
	assert.Equal(t, m32.Pub, loadedExt.Pub)
}

func TestLoadRejectsMalformedMaterial(t *testing.T) {
	_, err := Load("not-hex-not-base64-not-a-file")
	assert.Error(t, err)
}

func encodeHex(b []byte) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexDigits[c>>4]
		out[i*2+1] = hexDigits[c&0x0f]
	}
	return string(out)
}
