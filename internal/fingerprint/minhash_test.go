package fingerprint_test

import (
	"testing"

	"github.com/lqt0707/monitor/internal/fingerprint"
)

// ─── Determinism and similarity bounds ─────────────────────────────────────

func TestFingerprint_Deterministic(t *testing.T) {
	in := fingerprint.Input{
		Type:    "jsError",
		Message: "Cannot read property 'name' of undefined",
		Stack:   "at foo (/app/src/a.js:10:5)\nat bar (/app/src/b.js:20:9)",
		File:    "/app/src/a.js",
	}
	opt := fingerprint.DefaultOptions()
	a := fingerprint.Fingerprint(in, opt, fingerprint.DefaultK)
	b := fingerprint.Fingerprint(in, opt, fingerprint.DefaultK)
	if a != b {
		t.Fatalf("fingerprint not deterministic: %q != %q", a, b)
	}
	if len(a) != 8*fingerprint.DefaultK {
		t.Fatalf("fingerprint length = %d, want %d", len(a), 8*fingerprint.DefaultK)
	}
	if !fingerprint.IsValidHash(a, fingerprint.DefaultK) {
		t.Fatalf("fingerprint %q is not a valid hash", a)
	}
}

func TestFingerprint_EmptyInputValid(t *testing.T) {
	f := fingerprint.Fingerprint(fingerprint.Input{}, fingerprint.DefaultOptions(), fingerprint.DefaultK)
	if !fingerprint.IsValidHash(f, fingerprint.DefaultK) {
		t.Fatalf("empty-input fingerprint %q is not valid", f)
	}
}

func TestSimilarity_Reflexive(t *testing.T) {
	f := fingerprint.Fingerprint(fingerprint.Input{Message: "boom"}, fingerprint.DefaultOptions(), fingerprint.DefaultK)
	if s := fingerprint.Similarity(f, f); s != 1 {
		t.Errorf("similarity(h,h) = %v, want 1", s)
	}
}

func TestSimilarity_Symmetric(t *testing.T) {
	opt := fingerprint.DefaultOptions()
	a := fingerprint.Fingerprint(fingerprint.Input{Message: "one thing broke"}, opt, fingerprint.DefaultK)
	b := fingerprint.Fingerprint(fingerprint.Input{Message: "another thing broke"}, opt, fingerprint.DefaultK)
	s1 := fingerprint.Similarity(a, b)
	s2 := fingerprint.Similarity(b, a)
	if s1 != s2 {
		t.Errorf("similarity not symmetric: %v != %v", s1, s2)
	}
	if s1 < 0 || s1 > 1 {
		t.Errorf("similarity %v out of [0,1]", s1)
	}
}

// ─── Scenario S1: fingerprint clustering ───────────────────────────────────

func TestScenario_S1_FingerprintClustering(t *testing.T) {
	opt := fingerprint.DefaultOptions()
	stack := "at render (/app/src/widget.js:42:13)\nat commit (/app/src/core.js:88:4)"

	f1 := fingerprint.Fingerprint(fingerprint.Input{
		Type:    "jsError",
		Message: "Cannot read property 'name' of undefined",
		Stack:   stack,
		File:    "/app/src/widget.js",
	}, opt, fingerprint.DefaultK)

	f2 := fingerprint.Fingerprint(fingerprint.Input{
		Type:    "jsError",
		Message: "Cannot read property 'email' of undefined",
		Stack:   "at render (/app/src/widget.js:45:13)\nat commit (/app/src/core.js:90:4)",
		File:    "/app/src/widget.js",
	}, opt, fingerprint.DefaultK)

	sim := fingerprint.Similarity(f1, f2)
	if sim <= 0.5 {
		t.Fatalf("S1: similarity = %v, want > 0.5", sim)
	}
	if !fingerprint.ShouldAggregate(f1, f2, 0.5) {
		t.Fatalf("S1: shouldAggregate = false, want true at threshold 0.5")
	}
}

// ─── Scenario S2: fingerprint separation ───────────────────────────────────

func TestScenario_S2_FingerprintSeparation(t *testing.T) {
	opt := fingerprint.DefaultOptions()

	f1 := fingerprint.Fingerprint(fingerprint.Input{
		Type:    "jsError",
		Message: "Cannot read property 'name' of undefined",
		Stack:   "at render (/app/src/widget.js:42:13)",
		File:    "/app/src/widget.js",
	}, opt, fingerprint.DefaultK)

	f2 := fingerprint.Fingerprint(fingerprint.Input{
		Type:    "jsError",
		Message: "SyntaxError: Unexpected token '}'",
		Stack:   "at parse (/app/src/config.js:5:1)",
		File:    "/app/src/config.js",
	}, opt, fingerprint.DefaultK)

	sim := fingerprint.Similarity(f1, f2)
	if sim >= 0.5 {
		t.Fatalf("S2: similarity = %v, want < 0.5", sim)
	}
	if fingerprint.ShouldAggregate(f1, f2, 0.5) {
		t.Fatalf("S2: shouldAggregate = true, want false")
	}
}

// ─── LSH index ──────────────────────────────────────────────────────────────

func TestLSHIndex_CandidatesFindsSimilar(t *testing.T) {
	idx := fingerprint.NewIndex(fingerprint.DefaultBandSize)
	opt := fingerprint.DefaultOptions()

	f1 := fingerprint.Fingerprint(fingerprint.Input{Message: "same-ish error one"}, opt, fingerprint.DefaultK)
	f2 := fingerprint.Fingerprint(fingerprint.Input{Message: "same-ish error two"}, opt, fingerprint.DefaultK)
	f3 := fingerprint.Fingerprint(fingerprint.Input{Message: "completely different failure mode xyz"}, opt, fingerprint.DefaultK)

	idx.Add("a", f1)
	idx.Add("b", f2)
	idx.Add("c", f3)

	candidates := idx.Candidates(f1)
	found := false
	for _, c := range candidates {
		if c == "b" {
			found = true
		}
	}
	if !found {
		t.Fatalf("candidates for f1 = %v, expected to contain similar key 'b'", candidates)
	}
}

func TestLSHIndex_RemoveDeletesKey(t *testing.T) {
	idx := fingerprint.NewIndex(fingerprint.DefaultBandSize)
	f := fingerprint.Fingerprint(fingerprint.Input{Message: "x"}, fingerprint.DefaultOptions(), fingerprint.DefaultK)
	idx.Add("k", f)
	idx.Remove("k")
	if _, ok := idx.Signature("k"); ok {
		t.Fatalf("signature for removed key still present")
	}
}
