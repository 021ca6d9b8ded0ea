// Package nickname assigns stable pseudonyms to user fingerprints.
package nickname

import (
	"hash/fnv"
	"math/rand"
	"sync"
)

var adjectives = []string{
	"Salty", "Scurvy", "Barnacled", "Swashbuckling", "Landlubbing", "Seafaring",
	"Windswept", "Crusty", "Briny", "Stormy", "Drifting", "Anchored", "Rigged",
	"Capsized", "Marooned", "Plundering", "Rowdy", "Mutinous", "Jolly", "Rusty",
	"Groggy", "Bilge", "Scallywag", "Sunburnt", "Tattered", "Wayward", "Roving",
	"Shipwrecked", "Weathered", "Tipsy", "Rogue", "Surly", "Cunning", "Fearless",
	"Grizzled", "Legendary", "Mysterious", "One-Eyed", "Peg-Legged", "Ragged",
	"Sneaky", "Tattooed", "Toothless", "Treacherous", "Wily", "Wobbly", "Cursed",
}

var nouns = []string{
	"Buccaneer", "Privateer", "Corsair", "Mariner", "Skipper", "Deckhand",
	"Helmsman", "Bosun", "Quartermaster", "Shipmate", "Scallywag", "Rapscallion",
	"Landlubber", "Seadog", "Swab", "Barnacle", "Kraken", "Mermaid", "Parrot",
	"Pelican", "Albatross", "Dolphin", "Whale", "Shark", "Octopus", "Jellyfish",
	"Starfish", "Seahorse", "Manatee", "Stingray", "Barracuda", "Mackerel",
	"Cutlass", "Compass", "Anchor", "Cannon", "Doubloon", "Spyglass", "Plank",
	"Rigger", "Swabbie", "Castaway", "Smuggler", "Stowaway", "Drifter", "Voyager",
}

// Registry maps fingerprints to generated "Adjective Noun" nicknames.
// Nicknames are derived deterministically from the fingerprint, so a user
// keeps the same name for the life of the process, across sessions.
type Registry struct {
	mu    sync.Mutex
	names map[string]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]string)}
}

// NicknameFor returns the user's nickname, generating and caching it on
// first use.
func (r *Registry) NicknameFor(fingerprint string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name, ok := r.names[fingerprint]; ok {
		return name
	}

	h := fnv.New64a()
	h.Write([]byte(fingerprint))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	name := adjectives[rng.Intn(len(adjectives))] + " " + nouns[rng.Intn(len(nouns))]
	r.names[fingerprint] = name
	return name
}
