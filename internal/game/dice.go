// internal/game/dice.go
//
// Deterministic randomness for turn resolution.
//
// Every word an actor speaks gets its own stream derived from
// (seed, wave, turn, slot, index) with blake2b, so a resolution replays
// exactly from the same state and submission, and streams never depend on
// how many rolls an earlier word consumed.

package game

import (
	"encoding/binary"
	"math/rand/v2"

	"golang.org/x/crypto/blake2b"
)

// Stream is a source of bounded integers. IntN returns a value in [0, n).
type Stream interface {
	IntN(n int) int
}

// StreamKey identifies one stream.
type StreamKey struct {
	Seed  int64
	Wave  int
	Turn  int
	Slot  Slot
	Index int
}

// FallbackIndex is the stream index reserved for the enemy fallback draw.
const FallbackIndex = -1

// Dice maps a key to a stream. Tests substitute scripted dice.
type Dice func(StreamKey) Stream

// SeededDice derives a PCG stream from the blake2b digest of the key.
func SeededDice(k StreamKey) Stream {
	var buf [40]byte
	binary.BigEndian.PutUint64(buf[0:], uint64(k.Seed))
	binary.BigEndian.PutUint64(buf[8:], uint64(int64(k.Wave)))
	binary.BigEndian.PutUint64(buf[16:], uint64(int64(k.Turn)))
	binary.BigEndian.PutUint64(buf[24:], uint64(int64(k.Slot)))
	binary.BigEndian.PutUint64(buf[32:], uint64(int64(k.Index)))
	sum := blake2b.Sum256(buf[:])
	return rand.New(rand.NewPCG(
		binary.LittleEndian.Uint64(sum[0:8]),
		binary.LittleEndian.Uint64(sum[8:16]),
	))
}

// roll returns a percentile in [0, 100).
func roll(s Stream) int {
	return s.IntN(100)
}

// between returns a value in [lo, hi]. Fixed ranges consume no randomness.
func between(s Stream, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + s.IntN(hi-lo+1)
}
