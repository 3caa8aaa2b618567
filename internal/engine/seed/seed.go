// Package seed derives stable generation seeds and provides the single
// seeded pseudo-random source used for every selection decision in the
// engine. Nothing else in the pipeline may consult wall clocks or host
// randomness.
package seed

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
)

// SeedLen is the number of hex characters kept from the hash. Uniqueness is
// the requirement, not secrecy.
const SeedLen = 16

// Inputs is the identity tuple a generation seed is derived from. Identical
// inputs always yield an identical seed.
type Inputs struct {
	UserID        int
	TemplateIDs   []string
	DaysPerWeek   int
	Fatigue       string
	PreferredDays []string
	Equipment     []string
}

// Derive produces the stable generation seed for an input tuple.
func Derive(in Inputs) string {
	templates := append([]string(nil), in.TemplateIDs...)
	sort.Strings(templates)
	equipment := append([]string(nil), in.Equipment...)
	sort.Strings(equipment)

	parts := []string{
		"u=" + strconv.Itoa(in.UserID),
		"t=" + strings.Join(templates, "+"),
		"d=" + strconv.Itoa(in.DaysPerWeek),
		"f=" + in.Fatigue,
		"p=" + strings.Join(in.PreferredDays, "+"),
		"e=" + strings.Join(equipment, "+"),
	}
	return hashHex(strings.Join(parts, "|"))
}

// DeriveWeekly extends a base seed with week identity and the injury
// fingerprint, used by the program-mixing variant so each week (and each
// change in the injury picture) reshuffles selection.
func DeriveWeekly(base, weekKey, injuryFingerprint string) string {
	return hashHex(base + "|w=" + weekKey + "|i=" + injuryFingerprint)
}

func hashHex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:SeedLen]
}

// RNG is the seeded pseudo-random source. Every call with the same seed and
// key returns the same value, so selection is reproducible end to end.
type RNG struct {
	seed string
}

// NewRNG wraps a derived seed.
func NewRNG(seed string) *RNG {
	return &RNG{seed: seed}
}

// Next returns a deterministic value in [0,1) for the given key.
func (r *RNG) Next(key string) float64 {
	sum := sha256.Sum256([]byte(r.seed + "|" + key))
	v := binary.BigEndian.Uint64(sum[:8])
	return float64(v>>11) / (1 << 53)
}

// Intn returns a deterministic index in [0,n) for the given key. n must be
// positive.
func (r *RNG) Intn(key string, n int) int {
	if n <= 0 {
		return 0
	}
	return int(r.Next(key) * float64(n))
}

// Jitter returns 0 or 1 deterministically for the given key, used for small
// set-count variety in slot requests.
func (r *RNG) Jitter(key string) int {
	if r.Next(key) < 0.5 {
		return 0
	}
	return 1
}
