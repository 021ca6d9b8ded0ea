package nickname

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNicknameFor_Stable(t *testing.T) {
	r := NewRegistry()

	first := r.NicknameFor("fingerprint-1")
	assert.Equal(t, first, r.NicknameFor("fingerprint-1"), "same fingerprint keeps its nickname")
}

func TestNicknameFor_DeterministicAcrossRegistries(t *testing.T) {
	a := NewRegistry()
	b := NewRegistry()

	// Derivation depends only on the fingerprint, not registry state
	assert.Equal(t, a.NicknameFor("fingerprint-1"), b.NicknameFor("fingerprint-1"))
}

func TestNicknameFor_Format(t *testing.T) {
	r := NewRegistry()

	for _, fp := range []string{"a", "b", "c", "device-12345", "another-device"} {
		name := r.NicknameFor(fp)
		parts := strings.SplitN(name, " ", 2)
		assert.Len(t, parts, 2, "nickname %q should be two words", name)
		assert.Contains(t, adjectives, parts[0])
		assert.Contains(t, nouns, parts[1])
	}
}

func TestNicknameFor_DifferentFingerprints(t *testing.T) {
	r := NewRegistry()

	// Collisions are possible but distinct fingerprints should not all
	// map to one name
	seen := map[string]struct{}{}
	for _, fp := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		seen[r.NicknameFor(fp)] = struct{}{}
	}
	assert.Greater(t, len(seen), 1)
}
