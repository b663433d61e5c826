package crypto

import "crypto/ed25519"

// ED25519PublicKeySet is the set of peer identities a node accepts.
type ED25519PublicKeySet map[[Ed25519PublicSize]byte]struct{}

func (set ED25519PublicKeySet) Add(key ed25519.PublicKey) {
	set[[Ed25519PublicSize]byte(key)] = struct{}{}
}

func (set ED25519PublicKeySet) Has(key ed25519.PublicKey) bool {
	if len(key) != Ed25519PublicSize {
		return false
	}
	_, ok := set[[Ed25519PublicSize]byte(key)]
	return ok
}
