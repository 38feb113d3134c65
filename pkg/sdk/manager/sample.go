package manager

import "math/rand"

// sampleCoin is a thin seam over math/rand so tests can't be flaky by
// construction (they use sampleRate in {0,1} exclusively).
func sampleCoin() float64 { return rand.Float64() }
