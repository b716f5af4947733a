/*Package idmap implements the particle store's gid -> local-index map.

This completes the teacher's lib/cuckoo stub (an Interface with Length,
Index, Save and Put methods whose Sort and Bin functions were left
unimplemented) into a real open-addressing hash map. A linear-probe table
is the right structure here, not a plain Go map, because the store needs
the map updated in lockstep with swap-based compaction and halo/ghost
churn every step; an open-addressing table lets Put/Delete work against
flat arrays without an extra indirection through Go's map bucket machinery
on the hot path (AddParticle, DoParticleRemoval).
*/
package idmap

type slotState uint8

const (
	slotEmpty slotState = iota
	slotUsed
	slotDeleted
)

// Map is an open-addressing gid -> local-index table using linear probing
// with tombstoned deletes.
type Map struct {
	keys      []int64
	values    []int
	state     []slotState
	count     int // live entries
	tombstone int // deleted slots awaiting a rehash
}

// New returns an empty Map sized for at least capacity entries before its
// first internal grow.
func New(capacity int) *Map {
	n := nextPow2(capacity*2 + 1)
	if n < 8 {
		n = 8
	}
	return &Map{
		keys:   make([]int64, n),
		values: make([]int, n),
		state:  make([]slotState, n),
	}
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func hash64(x uint64) uint64 {
	// splitmix64 finalizer.
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}

func (m *Map) slot(gid int64) int {
	return int(hash64(uint64(gid)) % uint64(len(m.keys)))
}

// Put records that gid maps to local index idx, overwriting any previous
// mapping for gid.
func (m *Map) Put(gid int64, idx int) {
	if (m.count+m.tombstone+1)*2 >= len(m.keys) {
		m.rehash(len(m.keys) * 2)
	}
	m.insert(gid, idx)
}

// insert assumes the table has room and performs no growth.
func (m *Map) insert(gid int64, idx int) {
	i := m.slot(gid)
	firstTombstone := -1
	for {
		switch m.state[i] {
		case slotEmpty:
			dest := i
			if firstTombstone >= 0 {
				dest = firstTombstone
				m.tombstone--
			}
			m.keys[dest], m.values[dest], m.state[dest] = gid, idx, slotUsed
			m.count++
			return
		case slotDeleted:
			if firstTombstone < 0 {
				firstTombstone = i
			}
		case slotUsed:
			if m.keys[i] == gid {
				m.values[i] = idx
				return
			}
		}
		i = (i + 1) % len(m.keys)
	}
}

// Get returns the local index for gid and whether gid is present.
func (m *Map) Get(gid int64) (int, bool) {
	i := m.slot(gid)
	for probes := 0; probes < len(m.keys); probes++ {
		switch m.state[i] {
		case slotEmpty:
			return 0, false
		case slotUsed:
			if m.keys[i] == gid {
				return m.values[i], true
			}
		}
		i = (i + 1) % len(m.keys)
	}
	return 0, false
}

// Delete removes gid from the map, if present. Idempotent.
func (m *Map) Delete(gid int64) {
	i := m.slot(gid)
	for probes := 0; probes < len(m.keys); probes++ {
		switch m.state[i] {
		case slotEmpty:
			return
		case slotUsed:
			if m.keys[i] == gid {
				m.state[i] = slotDeleted
				m.count--
				m.tombstone++
				if m.tombstone > len(m.keys)/2 {
					m.rehash(len(m.keys))
				}
				return
			}
		}
		i = (i + 1) % len(m.keys)
	}
}

// rehash rebuilds the table at the given capacity, dropping tombstones.
func (m *Map) rehash(newCap int) {
	oldKeys, oldValues, oldState := m.keys, m.values, m.state
	m.keys = make([]int64, newCap)
	m.values = make([]int, newCap)
	m.state = make([]slotState, newCap)
	m.count, m.tombstone = 0, 0
	for i, st := range oldState {
		if st == slotUsed {
			m.insert(oldKeys[i], oldValues[i])
		}
	}
}

// Len returns the number of live entries.
func (m *Map) Len() int { return m.count }
