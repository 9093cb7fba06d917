// Package synctab is the Go analogue of the C original's dlsym-resolved
// "next" function pointers: component C, the syscall interposition
// table. Instead of resolving libc symbols at runtime, each entry is a
// function-valued field populated exactly once behind a sync.Once,
// defaulting to a thin wrapper over golang.org/x/sys/unix. Tests
// construct a Table with stub functions instead.
package synctab

import (
	"sync"

	"golang.org/x/sys/unix"
)

// Table holds the real syscalls the runtime interposes on. The zero
// value is unusable; use Default() to get the production table or
// build one by hand in tests.
type Table struct {
	Fcntl         func(fd int, cmd int, arg int) (int, error)
	FcntlFlock    func(fd int, cmd int, lock *unix.Flock_t) error
	Socket        func(domain, typ, proto int) (int, error)
	Listen        func(fd int, backlog int) error
	Connect       func(fd int, sa unix.Sockaddr) error
	Accept        func(fd int) (int, unix.Sockaddr, error)
	Close         func(fd int) error
	Read          func(fd int, p []byte) (int, error)
	Write         func(fd int, p []byte) (int, error)
	Recvfrom      func(fd int, p []byte, flags int) (int, unix.Sockaddr, error)
	Recvmsg       func(fd int, p, oob []byte, flags int) (n, oobn, recvflags int, from unix.Sockaddr, err error)
	Sendto        func(fd int, p []byte, flags int, to unix.Sockaddr) error
	Sendmsg       func(fd int, p, oob []byte, to unix.Sockaddr, flags int) (int, error)
	GetsockoptErr func(fd int) (int, error)
}

var (
	defaultOnce  sync.Once
	defaultTable *Table
)

// Default returns the process-wide production table, resolving its
// entries to golang.org/x/sys/unix exactly once. Concurrent first
// callers race harmlessly onto the same resolved table, mirroring the
// "benign race, same resolved value" property of the dlsym original.
func Default() *Table {
	defaultOnce.Do(func() {
		defaultTable = newUnixTable()
	})
	return defaultTable
}

func newUnixTable() *Table {
	return &Table{
		Fcntl: func(fd, cmd, arg int) (int, error) {
			return unix.FcntlInt(uintptr(fd), cmd, arg)
		},
		FcntlFlock: func(fd, cmd int, lock *unix.Flock_t) error {
			return unix.FcntlFlock(uintptr(fd), cmd, lock)
		},
		Socket:   unix.Socket,
		Listen:   unix.Listen,
		Connect:  unix.Connect,
		Accept:   unix.Accept,
		Close:    unix.Close,
		Read:     unix.Read,
		Write:    unix.Write,
		Recvfrom: unix.Recvfrom,
		Recvmsg: func(fd int, p, oob []byte, flags int) (int, int, int, unix.Sockaddr, error) {
			return unix.Recvmsg(fd, p, oob, flags)
		},
		Sendto: unix.Sendto,
		Sendmsg: func(fd int, p, oob []byte, to unix.Sockaddr, flags int) (int, error) {
			return unix.SendmsgN(fd, p, oob, to, flags)
		},
		GetsockoptErr: func(fd int) (int, error) {
			return unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
		},
	}
}
