// Package fingerprint derives a stable pseudo-identity from client-supplied
// device and browser signals.
//
// The digest is deterministic: the same signal tuple produces the same output
// on every instance, every time. A server-side salt is mixed in so guests
// cannot precompute fingerprints offline, but the salt is process-wide
// configuration, never random per process.
//
// Known limitation, carried deliberately: different browsers or devices used
// by the same person produce different fingerprints and count as distinct
// guests. That false-negative tolerance is the design, not a bug.
package fingerprint

import (
	"encoding/binary"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/mssola/useragent"
	"golang.org/x/crypto/blake2b"
)

// Signals is the explicit, ordered tuple of client-supplied inputs. It is a
// closed struct rather than a map so adding a signal is a reviewed, versioned
// change to fingerprint semantics.
type Signals struct {
	UserAgent             string
	ScreenResolution      string
	TimezoneOffsetMinutes int
	Languages             []string
	// CanvasHash is the optional canvas/GPU rendering hash; empty when the
	// client could not produce one.
	CanvasHash string
}

// Engine computes keyed fingerprints. It is pure and safe for concurrent use.
type Engine struct {
	key []byte
}

// New builds an engine from the configured salt. Salts longer than the
// BLAKE2b key limit are compressed first.
func New(salt string) *Engine {
	key := []byte(salt)
	if len(key) > 64 {
		sum := blake2b.Sum256(key)
		key = sum[:]
	}
	return &Engine{key: key}
}

// Compute returns the 64-hex-char fingerprint for a signal tuple.
//
// Each field is length-prefixed before hashing so no crafted field content
// can collide with a different tuple; a delimiter-based join would be
// forgeable by embedding the delimiter in a field.
func (e *Engine) Compute(s Signals) string {
	h, _ := blake2b.New256(e.key)

	writeField := func(field string) {
		var prefix [4]byte
		binary.BigEndian.PutUint32(prefix[:], uint32(len(field)))
		h.Write(prefix[:])
		h.Write([]byte(field))
	}

	writeField(NormalizeUserAgent(s.UserAgent))
	writeField(strings.ToLower(strings.TrimSpace(s.ScreenResolution)))
	writeField(strconv.Itoa(s.TimezoneOffsetMinutes))
	for _, lang := range s.Languages {
		writeField(strings.ToLower(strings.TrimSpace(lang)))
	}
	writeField(s.CanvasHash)

	return hex.EncodeToString(h.Sum(nil))
}

// HashUserAgent returns the keyed digest of the normalized user agent, used
// by the backup duplicate check alongside the client IP.
func (e *Engine) HashUserAgent(rawUA string) string {
	h, _ := blake2b.New256(e.key)
	h.Write([]byte(NormalizeUserAgent(rawUA)))
	return hex.EncodeToString(h.Sum(nil))
}

// NormalizeUserAgent reduces a raw User-Agent to browser family, major
// version, and OS. Minor and patch version bumps happen silently during a
// browsing session; keying on the major version keeps a returning guest's
// fingerprint stable across them.
func NormalizeUserAgent(rawUA string) string {
	rawUA = strings.TrimSpace(rawUA)
	if rawUA == "" {
		return "unknown"
	}

	ua := useragent.New(rawUA)
	name, version := ua.Browser()
	if name == "" {
		return strings.ToLower(rawUA)
	}

	major := version
	if i := strings.Index(version, "."); i >= 0 {
		major = version[:i]
	}

	parts := []string{strings.ToLower(name)}
	if major != "" {
		parts = append(parts, major)
	}
	if os := ua.OS(); os != "" {
		parts = append(parts, strings.ToLower(os))
	}
	return strings.Join(parts, "/")
}
