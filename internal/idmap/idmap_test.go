package idmap

import "testing"

func TestPutGet(t *testing.T) {
	m := New(4)
	m.Put(10, 0)
	m.Put(11, 1)
	m.Put(12, 2)

	for _, tc := range []struct {
		gid  int64
		want int
	}{{10, 0}, {11, 1}, {12, 2}} {
		got, ok := m.Get(tc.gid)
		if !ok || got != tc.want {
			t.Errorf("Get(%d) = %d, %v; want %d, true", tc.gid, got, ok, tc.want)
		}
	}

	if _, ok := m.Get(99); ok {
		t.Errorf("Get(99) found an entry that was never inserted")
	}
}

func TestOverwrite(t *testing.T) {
	m := New(4)
	m.Put(5, 0)
	m.Put(5, 7)
	got, ok := m.Get(5)
	if !ok || got != 7 {
		t.Errorf("Get(5) = %d, %v; want 7, true", got, ok)
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d; want 1 after overwrite", m.Len())
	}
}

func TestDeleteIdempotent(t *testing.T) {
	m := New(4)
	m.Put(1, 0)
	m.Put(2, 1)
	m.Delete(1)
	m.Delete(1)

	if _, ok := m.Get(1); ok {
		t.Errorf("Get(1) found a deleted entry")
	}
	if got, ok := m.Get(2); !ok || got != 1 {
		t.Errorf("Get(2) = %d, %v; want 1, true", got, ok)
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d; want 1", m.Len())
	}
}

func TestGrowAndRehashPreserveEntries(t *testing.T) {
	m := New(4)
	const n = 500
	for i := int64(0); i < n; i++ {
		m.Put(i, int(i))
	}
	for i := int64(0); i < n; i++ {
		got, ok := m.Get(i)
		if !ok || got != int(i) {
			t.Fatalf("Get(%d) = %d, %v; want %d, true", i, got, ok, i)
		}
	}
	if m.Len() != n {
		t.Errorf("Len() = %d; want %d", m.Len(), n)
	}
}

func TestDeleteThenReinsertManyTombstones(t *testing.T) {
	m := New(4)
	const n = 200
	for i := int64(0); i < n; i++ {
		m.Put(i, int(i))
	}
	for i := int64(0); i < n; i += 2 {
		m.Delete(i)
	}
	for i := int64(0); i < n; i += 2 {
		m.Put(i, int(i)+1000)
	}
	for i := int64(0); i < n; i++ {
		want := int(i)
		if i%2 == 0 {
			want = int(i) + 1000
		}
		got, ok := m.Get(i)
		if !ok || got != want {
			t.Fatalf("Get(%d) = %d, %v; want %d, true", i, got, ok, want)
		}
	}
}
