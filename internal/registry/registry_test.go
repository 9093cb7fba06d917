package registry

import "testing"

func TestCreateAndLookup(t *testing.T) {
	r := New()
	rec := r.Create(4)
	if rec.Fd != 4 {
		t.Fatalf("expected fd 4, got %d", rec.Fd)
	}
	if got := r.Lookup(4); got != rec {
		t.Fatalf("lookup returned different record: %v != %v", got, rec)
	}
}

func TestLookupMissing(t *testing.T) {
	r := New()
	if got := r.Lookup(99); got != nil {
		t.Fatalf("expected nil for unmanaged fd, got %v", got)
	}
}

func TestRemove(t *testing.T) {
	r := New()
	r.Create(7)
	rec := r.Remove(7)
	if rec == nil || rec.Fd != 7 {
		t.Fatalf("expected removed record for fd 7, got %v", rec)
	}
	if got := r.Lookup(7); got != nil {
		t.Fatalf("expected fd 7 gone after remove, got %v", got)
	}
}

func TestDirectGrowth(t *testing.T) {
	r := New()
	big := 10_000
	rec := r.Create(big)
	if got := r.Lookup(big); got != rec {
		t.Fatalf("expected growth to cover fd %d", big)
	}
}

func TestSparseFallback(t *testing.T) {
	r := New()
	high := 1 << 20
	rec := r.Create(high)
	if got := r.Lookup(high); got != rec {
		t.Fatalf("expected sparse storage to cover fd %d", high)
	}
	if len(r.direct) > high {
		t.Fatalf("direct slice should not have grown to cover sparse fd %d, len=%d", high, len(r.direct))
	}
}

func TestRemoveAll(t *testing.T) {
	r := New()
	r.Create(1)
	r.Create(2)
	r.Create(1 << 20)

	all := r.RemoveAll()
	if len(all) != 3 {
		t.Fatalf("expected 3 records drained, got %d", len(all))
	}
	if r.Lookup(1) != nil || r.Lookup(2) != nil || r.Lookup(1<<20) != nil {
		t.Fatalf("expected registry empty after RemoveAll")
	}
}
