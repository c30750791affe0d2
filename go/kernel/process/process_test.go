package process

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"

	"github.com/lunixbochs/userprog/go/fs"
	"github.com/lunixbochs/userprog/go/kernel/vm"
	"github.com/lunixbochs/userprog/go/models/cpu"
)

// exit runs the lifecycle tail the kernel runs after a process stops.
func exit(tab *Table, p *Process, status int) {
	p.SetExit(status)
	tab.Exit(p)
}

func TestWait(t *testing.T) {
	n := neko.Modern(t)

	n.It("returns the exit status of a child that already exited", func(t *testing.T) {
		tab := NewTable(0)
		root := NewRoot("main")
		child, err := tab.Spawn(root, "child")
		require.NoError(t, err)

		exit(tab, child, 3)
		require.Equal(t, 3, tab.Wait(root, child.Pid))
		require.Nil(t, tab.Get(child.Pid))
	})

	n.It("blocks until the child exits", func(t *testing.T) {
		tab := NewTable(0)
		root := NewRoot("main")
		child, err := tab.Spawn(root, "child")
		require.NoError(t, err)

		got := make(chan int, 1)
		go func() { got <- tab.Wait(root, child.Pid) }()

		select {
		case <-got:
			t.Fatal("wait returned before the child exited")
		case <-time.After(50 * time.Millisecond):
		}

		exit(tab, child, 42)

		select {
		case status := <-got:
			require.Equal(t, 42, status)
		case <-time.After(2 * time.Second):
			t.Fatal("wait never returned")
		}
	})

	n.It("returns the status exactly once", func(t *testing.T) {
		tab := NewTable(0)
		root := NewRoot("main")
		child, err := tab.Spawn(root, "child")
		require.NoError(t, err)

		exit(tab, child, 0)
		require.Equal(t, 0, tab.Wait(root, child.Pid))
		require.Equal(t, Failed, tab.Wait(root, child.Pid))
	})

	n.It("fails immediately for pids that are not children", func(t *testing.T) {
		tab := NewTable(0)
		root := NewRoot("main")
		a, _ := tab.Spawn(root, "a")
		b, _ := tab.Spawn(a, "b")

		require.Equal(t, Failed, tab.Wait(root, 999))
		require.Equal(t, Failed, tab.Wait(root, b.Pid))
		require.Equal(t, Failed, tab.Wait(b, a.Pid))
	})

	n.It("fails a second concurrent wait without blocking", func(t *testing.T) {
		tab := NewTable(0)
		root := NewRoot("main")
		child, _ := tab.Spawn(root, "child")

		got := make(chan int, 1)
		go func() { got <- tab.Wait(root, child.Pid) }()
		require.Eventually(t, func() bool {
			tab.mu.Lock()
			defer tab.mu.Unlock()
			return child.waited
		}, 2*time.Second, time.Millisecond)

		require.Equal(t, Failed, tab.Wait(root, child.Pid))
		exit(tab, child, 7)
		require.Equal(t, 7, <-got)
	})

	n.Meow()
}

func TestExit(t *testing.T) {
	n := neko.Modern(t)

	n.It("keeps the first recorded status", func(t *testing.T) {
		p := NewRoot("p")
		require.True(t, p.SetExit(5))
		require.False(t, p.SetExit(-1))
		status, ok := p.Status()
		require.True(t, ok)
		require.Equal(t, 5, status)
	})

	n.It("reclaims orphans when they exit", func(t *testing.T) {
		tab := NewTable(0)
		root := NewRoot("main")
		parent, _ := tab.Spawn(root, "parent")
		running, _ := tab.Spawn(parent, "running")
		zombie, _ := tab.Spawn(parent, "zombie")

		exit(tab, zombie, 1)
		require.NotNil(t, tab.Get(zombie.Pid))

		exit(tab, parent, 0)
		require.Nil(t, tab.Get(zombie.Pid))
		require.Nil(t, tab.Parent(running))
		require.NotNil(t, tab.Get(parent.Pid))

		exit(tab, running, 0)
		require.Nil(t, tab.Get(running.Pid))

		require.Equal(t, 0, tab.Wait(root, parent.Pid))
		require.Equal(t, 0, tab.Len())
	})

	n.It("ignores a second exit", func(t *testing.T) {
		tab := NewTable(0)
		root := NewRoot("main")
		child, _ := tab.Spawn(root, "child")
		exit(tab, child, 9)
		exit(tab, child, 10)
		require.Equal(t, 9, tab.Wait(root, child.Pid))
	})

	n.It("drops aborted processes", func(t *testing.T) {
		tab := NewTable(0)
		root := NewRoot("main")
		child, _ := tab.Spawn(root, "child")
		tab.Abort(child)
		require.Nil(t, tab.Get(child.Pid))
		require.Equal(t, Failed, tab.Wait(root, child.Pid))
	})

	n.Meow()
}

func TestTableLimits(t *testing.T) {
	tab := NewTable(2)
	root := NewRoot("main")
	a, err := tab.Spawn(root, "a")
	require.NoError(t, err)
	_, err = tab.Spawn(root, "b")
	require.NoError(t, err)
	_, err = tab.Spawn(root, "c")
	require.Equal(t, ErrTooManyProcs, errors.Cause(err))

	// pids are not reused
	tab.Abort(a)
	c, err := tab.Spawn(root, "c")
	require.NoError(t, err)
	require.Equal(t, 3, c.Pid)
	require.Len(t, tab.List(), 2)
}

func TestSema(t *testing.T) {
	s := NewSema(0)
	require.False(t, s.TryDown())
	s.Up()
	s.Up()
	require.True(t, s.TryDown())
	s.Down()
	require.False(t, s.TryDown())
}

func TestFdTable(t *testing.T) {
	m := fs.NewMemFS()
	m.Add("a", []byte("abc"))
	open := func() fs.File {
		f, err := m.Open("a")
		require.NoError(t, err)
		return f
	}

	tab := NewFdTable()
	fd, err := tab.Add(open())
	require.NoError(t, err)
	require.Equal(t, FirstFd, fd)
	fd2, _ := tab.Add(open())
	require.Equal(t, 3, fd2)

	require.NotNil(t, tab.Remove(fd))
	require.Nil(t, tab.Get(fd))
	require.Nil(t, tab.Remove(fd))
	require.Nil(t, tab.Get(STDIN_FILENO))
	require.Nil(t, tab.Get(STDOUT_FILENO))

	// lowest free descriptor is reused
	fd, _ = tab.Add(open())
	require.Equal(t, FirstFd, fd)
	require.Equal(t, []int{2, 3}, tab.Fds())

	for len(tab.Fds()) < MaxFiles {
		_, err := tab.Add(open())
		require.NoError(t, err)
	}
	_, err = tab.Add(open())
	require.Equal(t, ErrTooManyFiles, errors.Cause(err))

	tab.CloseAll()
	require.Empty(t, tab.Fds())
}

func TestSnapshot(t *testing.T) {
	tab := NewTable(0)
	parent, err := tab.Spawn(nil, "parent")
	require.NoError(t, err)
	child, err := tab.Spawn(parent, "child")
	require.NoError(t, err)

	// spawned but not yet attached
	s, ok := tab.Snapshot(parent.Pid)
	require.True(t, ok)
	require.Equal(t, "parent", s.Name)
	require.Nil(t, s.Maps)
	require.Equal(t, []int{child.Pid}, s.Children)

	pool, err := vm.NewPagePool(2)
	require.NoError(t, err)
	defer pool.Close()
	space := vm.NewAddressSpace(pool)
	require.NoError(t, space.Map(0x1000, cpu.PROT_READ, "code", nil))
	tab.Attach(parent, "parent -v", space)
	memfs := fs.NewMemFS()
	memfs.Add("f", nil)
	f, err := memfs.Open("f")
	require.NoError(t, err)
	_, err = parent.Files.Add(f)
	require.NoError(t, err)

	s, ok = tab.Snapshot(parent.Pid)
	require.True(t, ok)
	require.Equal(t, "parent -v", s.Cmdline)
	require.Equal(t, []int{FirstFd}, s.Fds)
	require.Equal(t, []string{"0x00001000-0x00002000 r-- frame=0 [code]"}, s.Maps)

	// the copy does not follow the live descriptor
	space.Release(nil)
	require.Len(t, s.Maps, 1)
	s, _ = tab.Snapshot(parent.Pid)
	require.Nil(t, s.Maps)

	exit(tab, parent, 4)
	c, ok := tab.Snapshot(child.Pid)
	require.True(t, ok)
	require.Zero(t, c.Parent)
	_, ok = tab.Snapshot(parent.Pid)
	require.False(t, ok, "orphan parent was not reaped")
	require.Len(t, tab.Snapshots(), 1)
}
