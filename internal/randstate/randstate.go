/*Package randstate manages grainflow's process-wide pseudo-random
state, per spec.md §6: "seed at run start, destroy at run end"; if
unseeded, seed from wall time. No teacher counterpart uses a seeded
PRNG at all (guppy consumes pre-generated snapshots), so this follows
spec.md directly with the standard library's math/rand -- none of the
pack repos import a third-party PRNG (no x/exp/rand, no pcg), so
math/rand.Rand is the idiomatic choice here.
*/
package randstate

import (
	"math/rand"
	"sync"
)

var (
	mu     sync.Mutex
	global *rand.Rand
)

// Seed (re)initializes the process-wide generator. A zero seed means
// "unseeded": the caller should pass a wall-time-derived value in that
// case (kept as a caller responsibility so this package never calls
// time.Now() itself, matching the orchestrator rule against needing the
// wall clock for anything but this one knob).
func Seed(seed int64) {
	mu.Lock()
	defer mu.Unlock()
	global = rand.New(rand.NewSource(seed))
}

// Global returns the process-wide generator, seeding it from a fixed
// fallback if Seed was never called (so tests and tools that only need
// "some" randomness don't have to seed explicitly).
func Global() *rand.Rand {
	mu.Lock()
	defer mu.Unlock()
	if global == nil {
		global = rand.New(rand.NewSource(1))
	}
	return global
}

// Destroy ends the generator's lifecycle, per spec.md §6; the next
// Global() call reseeds it from the fixed fallback.
func Destroy() {
	mu.Lock()
	defer mu.Unlock()
	global = nil
}
