package contentledger

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// BeaconSeedSize is the length of the secret that keys a BeaconRandomness.
const BeaconSeedSize = 32

// BeaconRandomness derives randomness as keyed BLAKE2b-256 of the subject.
// Without the seed the output cannot be predicted; with the same seed it is
// reproducible, which keeps keys stable across replays of the same ledger.
type BeaconRandomness struct {
	seed []byte
}

// NewBeaconRandomness creates a beacon keyed by seed. The seed must be
// between 1 and 64 bytes.
func NewBeaconRandomness(seed []byte) (*BeaconRandomness, error) {
	if len(seed) == 0 || len(seed) > blake2b.Size {
		return nil, fmt.Errorf("beacon seed must be 1..%d bytes, got %d", blake2b.Size, len(seed))
	}
	s := make([]byte, len(seed))
	copy(s, seed)
	return &BeaconRandomness{seed: s}, nil
}

// NewRandomBeacon creates a beacon keyed by a fresh secret from crypto/rand.
func NewRandomBeacon() (*BeaconRandomness, error) {
	seed := make([]byte, BeaconSeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("failed to read beacon seed: %w", err)
	}
	return NewBeaconRandomness(seed)
}

// Random returns 32 bytes of keyed BLAKE2b-256 over subject.
func (b *BeaconRandomness) Random(subject []byte) []byte {
	h, err := blake2b.New256(b.seed)
	if err != nil {
		// seed length is checked in the constructor
		panic(err)
	}
	h.Write(subject)
	return h.Sum(nil)
}

// FixedRandomness returns the same bytes for every subject. It is meant for
// tests that need to pin the derived key.
type FixedRandomness []byte

// Random returns a copy of the fixed bytes.
func (f FixedRandomness) Random(subject []byte) []byte {
	out := make([]byte, len(f))
	copy(out, f)
	return out
}

// RandomnessFunc adapts a function to the Randomness interface.
type RandomnessFunc func(subject []byte) []byte

// Random calls f(subject).
func (f RandomnessFunc) Random(subject []byte) []byte {
	return f(subject)
}
