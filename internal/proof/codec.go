// Package proof issues and verifies the rotating tokens shown on a session's shared display.
//
// A token is a keyed MAC over "<phase>:<sequence>" where sequence = floor(ts / rotation).
// Verification accepts the current sequence and, inside the grace period of a new bucket,
// the previous one. Nothing else is ever accepted, which bounds replay to one rotation plus grace.
package proof

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"io"
	"strconv"
	"time"

	"golang.org/x/crypto/hkdf"

	"github.com/dtroode/rollcall-server/internal/model"
)

const (
	keyInfo   = "rollcall/proof/v1"
	keySize   = 32
	tokenSize = 16
)

// Sequence returns the rotation bucket index of a millisecond timestamp.
func Sequence(tsMs, rotationMs int64) int64 {
	if rotationMs <= 0 {
		return 0
	}
	seq := tsMs / rotationMs
	if tsMs < 0 && tsMs%rotationMs != 0 {
		seq--
	}
	return seq
}

// Window returns the start and end of a sequence bucket.
func Window(seq int64, rotation time.Duration) (time.Time, time.Time) {
	rotationMs := rotation.Milliseconds()
	start := time.UnixMilli(seq * rotationMs).UTC()
	return start, start.Add(rotation)
}

// Issue returns the token for a phase and sequence.
func Issue(secret []byte, phase model.Phase, seq int64) string {
	return hex.EncodeToString(mac(deriveKey(secret), phase, seq))
}

// Verify reports whether token is acceptable at nowMs.
func Verify(secret []byte, token string, phase model.Phase, nowMs, rotationMs, graceMs int64) bool {
	if rotationMs <= 0 || token == "" {
		return false
	}
	presented, err := hex.DecodeString(token)
	if err != nil || len(presented) != tokenSize {
		return false
	}

	key := deriveKey(secret)
	seq := Sequence(nowMs, rotationMs)

	ok := subtle.ConstantTimeCompare(presented, mac(key, phase, seq)) == 1
	elapsed := nowMs - seq*rotationMs
	if elapsed < graceMs {
		// Always compute both MACs so timing does not reveal which bucket matched.
		prev := subtle.ConstantTimeCompare(presented, mac(key, phase, seq-1)) == 1
		ok = ok || prev
	}
	return ok
}

func deriveKey(secret []byte) []byte {
	r := hkdf.New(sha256.New, secret, nil, []byte(keyInfo))
	key := make([]byte, keySize)
	if _, err := io.ReadFull(r, key); err != nil {
		// hkdf only fails after producing 255*HashLen bytes.
		panic(err)
	}
	return key
}

func mac(key []byte, phase model.Phase, seq int64) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(string(phase)))
	h.Write([]byte{':'})
	h.Write([]byte(strconv.FormatInt(seq, 10)))
	return h.Sum(nil)[:tokenSize]
}
