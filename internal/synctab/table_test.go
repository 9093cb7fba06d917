package synctab

import (
	"testing"

	"golang.org/x/sys/unix"
)

func TestDefaultResolvesOnce(t *testing.T) {
	a := Default()
	b := Default()
	if a != b {
		t.Fatalf("expected Default() to return the same table instance across calls")
	}
	if a.Read == nil || a.Write == nil || a.Accept == nil {
		t.Fatalf("expected default table entries to be populated")
	}
}

func TestStubTableOverridesBehavior(t *testing.T) {
	calls := 0
	stub := &Table{
		Read: func(fd int, p []byte) (int, error) {
			calls++
			copy(p, "hi")
			return 2, nil
		},
	}
	n, err := stub.Read(3, make([]byte, 8))
	if err != nil || n != 2 || calls != 1 {
		t.Fatalf("expected stub Read to run, got n=%d err=%v calls=%d", n, err, calls)
	}
}

func TestUnixTableShapeMatchesSockaddr(t *testing.T) {
	tbl := newUnixTable()
	if tbl.Connect == nil {
		t.Fatal("expected Connect populated")
	}
	var _ func(int, unix.Sockaddr) error = tbl.Connect
}
