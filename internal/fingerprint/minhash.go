// Package fingerprint — minhash.go
//
// MinHash signature computation.
//
// For K hash functions h_i(x) = MD5(x ‖ i)[0:8] mod P_{i mod 5}, where the
// five P values are distinct 31-bit primes, the signature is
// min over the feature set of h_i, for i in [0, K). Each component is
// rendered as an 8-hex-digit word; the signature is their concatenation,
// so |fingerprint| = 8*K always.
//
// Two signatures of equal length are compared by counting equal-valued
// 8-char words and dividing by K — an unbiased estimator of the Jaccard
// similarity of the underlying feature sets.

package fingerprint

import (
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"strconv"
)

// DefaultK is the number of hash functions in a signature.
const DefaultK = 128

// primes holds the five distinct 31-bit primes the hash functions reduce
// modulo, selected round-robin by i mod 5.
var primes = [5]uint64{2147483647, 2147483629, 2147483587, 2147483579, 2147483563}

const maxUint64 = ^uint64(0)

// Signature computes the K-word MinHash signature over features.
// Deterministic: identical features (including the empty set) always
// produce the same signature of length 8*K.
func Signature(features []string, k int) string {
	if k <= 0 {
		k = DefaultK
	}
	mins := make([]uint64, k)
	for i := range mins {
		mins[i] = maxUint64
	}

	for _, f := range features {
		for i := 0; i < k; i++ {
			h := hashFeature(f, i) % primes[i%5]
			if h < mins[i] {
				mins[i] = h
			}
		}
	}

	// Features may be empty; an untouched slot stays at maxUint64. Reduce
	// it into range so the output remains a valid 8-hex-digit word rather
	// than overflowing during formatting.
	buf := make([]byte, 0, 8*k)
	for i := 0; i < k; i++ {
		v := mins[i]
		if v == maxUint64 {
			v = uint64(i) % primes[i%5]
		}
		word := make([]byte, 4)
		binary.BigEndian.PutUint32(word, uint32(v))
		buf = append(buf, []byte(hex.EncodeToString(word))...)
	}
	return string(buf)
}

// hashFeature computes MD5(feature || i), returning the leading 8 bytes as
// a big-endian uint64.
func hashFeature(feature string, i int) uint64 {
	sum := md5.Sum([]byte(feature + "\x00" + strconv.Itoa(i)))
	return binary.BigEndian.Uint64(sum[:8])
}

// IsValidHash reports whether f is a syntactically valid fingerprint for
// the given K: exactly 8*K hex characters.
func IsValidHash(f string, k int) bool {
	if k <= 0 {
		k = DefaultK
	}
	if len(f) != 8*k {
		return false
	}
	_, err := hex.DecodeString(f)
	return err == nil
}

// Similarity estimates Jaccard similarity between two equal-length
// signatures by counting matching 8-char words. Returns 0 if the lengths
// differ or are not a multiple of 8.
func Similarity(a, b string) float64 {
	if len(a) != len(b) || len(a) == 0 || len(a)%8 != 0 {
		return 0
	}
	words := len(a) / 8
	matches := 0
	for i := 0; i < words; i++ {
		off := i * 8
		if a[off:off+8] == b[off:off+8] {
			matches++
		}
	}
	return float64(matches) / float64(words)
}

// DefaultSimilarityThreshold is the default aggregation threshold.
const DefaultSimilarityThreshold = 0.8

// ShouldAggregate reports whether two fingerprints are similar enough to be
// merged into the same aggregation.
func ShouldAggregate(a, b string, threshold float64) bool {
	return Similarity(a, b) >= threshold
}

// Fingerprint computes the full pipeline: extract features from in, then
// hash them into a K-word signature using opt's budget.
func Fingerprint(in Input, opt Options, k int) string {
	feats := Extract(in, opt)
	return Signature(feats, k)
}

// Words splits a signature into its K 8-char words, for use by the LSH
// banding index.
func Words(sig string) []string {
	n := len(sig) / 8
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = sig[i*8 : i*8+8]
	}
	return out
}
