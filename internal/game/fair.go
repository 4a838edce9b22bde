package game

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

const (
	MinMultiplier      = 1.00
	MaxCrashMultiplier = 10000.00

	// HouseEdge shapes the payout distribution: P(crash >= m) = (1-edge)/m,
	// which targets a 99% RTP over the inverse draw.
	HouseEdge = 0.01

	// InstantCrashProb is the chance the round busts at exactly 1.00x.
	InstantCrashProb = 0.01
)

// GenerateServerSeed returns a fresh 256-bit secret seed, hex encoded.
func GenerateServerSeed() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
	}
	return hex.EncodeToString(b)
}

// HashServerSeed produces the SHA-256 commitment published to clients
// before the round starts.
func HashServerSeed(serverSeed string) string {
	h := sha256.Sum256([]byte(serverSeed))
	return hex.EncodeToString(h[:])
}

// VerifyCommitment reports whether serverSeed hashes to the previously
// published commitment.
func VerifyCommitment(serverSeed, serverSeedHash string) bool {
	got := HashServerSeed(serverSeed)
	return subtle.ConstantTimeCompare([]byte(got), []byte(serverSeedHash)) == 1
}

// DeriveCrashPoint maps (serverSeed, clientSeed, nonce) to the round's
// crash multiplier. Pure and deterministic: HMAC-SHA256 keyed by the server
// seed over "<clientSeed>:<nonce>", first 8 bytes taken as a uniform draw
// in [0,1), then an inverse-distribution transform bounded at
// MaxCrashMultiplier. Anyone holding the revealed seed can recompute it.
func DeriveCrashPoint(serverSeed, clientSeed string, nonce int64) float64 {
	mac := hmac.New(sha256.New, []byte(serverSeed))
	fmt.Fprintf(mac, "%s:%d", clientSeed, nonce)
	sum := mac.Sum(nil)

	r := float64(binary.BigEndian.Uint64(sum[:8])) / float64(1<<63) / 2

	if r < InstantCrashProb {
		return MinMultiplier
	}

	crash := (1 - HouseEdge) / (1 - r)

	// Two-decimal truncation so server, clients and the verifier all agree
	// on the exact published value.
	crash = float64(int64(crash*100)) / 100

	if crash < MinMultiplier {
		return MinMultiplier
	}
	if crash > MaxCrashMultiplier {
		return MaxCrashMultiplier
	}
	return crash
}

// VerifyCrashPoint recomputes the crash point for a revealed seed and checks
// it against the claimed value.
func VerifyCrashPoint(serverSeed, clientSeed string, nonce int64, claimed float64) bool {
	got := DeriveCrashPoint(serverSeed, clientSeed, nonce)
	diff := got - claimed
	if diff < 0 {
		diff = -diff
	}
	return diff < 0.005
}
