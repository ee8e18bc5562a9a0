package contentledger

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// ModuleIDSize is the length of the module identifier mixed into every
// randomness subject.
const ModuleIDSize = 8

// DefaultModuleID is the module identifier used when none is configured.
const DefaultModuleID = "tribal/c"

// KeyDeriver turns a seed into a content key using an injected randomness source.
type KeyDeriver struct {
	moduleID   [ModuleIDSize]byte
	randomness Randomness
}

// NewKeyDeriver creates a key deriver. moduleID must be exactly
// ModuleIDSize bytes.
func NewKeyDeriver(moduleID string, randomness Randomness) (*KeyDeriver, error) {
	if len(moduleID) != ModuleIDSize {
		return nil, fmt.Errorf("module id must be %d bytes, got %d", ModuleIDSize, len(moduleID))
	}
	if randomness == nil {
		return nil, fmt.Errorf("randomness source is required")
	}
	d := &KeyDeriver{randomness: randomness}
	copy(d.moduleID[:], moduleID)
	return d, nil
}

// Subject returns the randomness subject for seed: the module identifier
// followed by the little-endian seed.
func (d *KeyDeriver) Subject(seed Uint128) []byte {
	subject := make([]byte, 0, ModuleIDSize+16)
	subject = append(subject, d.moduleID[:]...)
	return append(subject, seed.LittleEndian()...)
}

// RandomNumber draws the 32-bit random number for seed.
//
// It panics when the randomness source returns fewer than four bytes: a
// source that short is a misconfiguration, not a runtime condition.
func (d *KeyDeriver) RandomNumber(seed Uint128) uint32 {
	out := d.randomness.Random(d.Subject(seed))
	if len(out) < 4 {
		panic(fmt.Sprintf("contentledger: randomness source returned %d bytes, need at least 4", len(out)))
	}
	return binary.LittleEndian.Uint32(out[:4])
}

// DeriveKey returns the 16-byte content key for seed: a version 5 UUID in
// the DNS namespace named by the little-endian random number.
func (d *KeyDeriver) DeriveKey(seed Uint128) []byte {
	name := make([]byte, 4)
	binary.LittleEndian.PutUint32(name, d.RandomNumber(seed))
	id := uuid.NewSHA1(uuid.NameSpaceDNS, name)
	key := make([]byte, len(id))
	copy(key, id[:])
	return key
}
