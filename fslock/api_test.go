// Copyright (c) 2021-2026, The OpenVFS Authors.
// SPDX-License-Identifier: Apache-2.0

package fslock

import (
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/openvfs/lockfs/blunder"
	"github.com/openvfs/lockfs/conf"
	"github.com/openvfs/lockfs/fs"
	"github.com/openvfs/lockfs/transitions"
)

var testConfMap conf.ConfMap

func testSetup() (err error) {
	confStrings := []string{
		"Logging.LogFilePath=",
		"Logging.LogToConsole=false",
		"TrackedLock.LockHoldTimeLimit=0s",
		"TrackedLock.LockCheckPeriod=0s",
		"FSLock.LockRetryDelayMax=5ms",
		"FSLock.RetryLimit=0",
	}

	testConfMap, err = conf.MakeConfMapFromStrings(confStrings)
	if nil != err {
		return
	}

	err = transitions.Up(testConfMap)
	return
}

func testTeardown() (err error) {
	err = transitions.Down(testConfMap)
	return
}

func TestMain(m *testing.M) {
	err := testSetup()
	if nil != err {
		panic(err)
	}

	code := m.Run()

	err = testTeardown()
	if nil != err {
		panic(err)
	}

	os.Exit(code)
}

// testInner is a delegate controller that records, per call, which lock
// mode the calling goroutine held, and whose behavior per method can be
// overridden with hooks.
type testInner struct {
	sync.Mutex
	model *Model

	calls []string // "method/lockmode"

	isReadableHook func() (bool, error)
	syncHook       func() error
	unlinkHook     func() error
}

func (t *testInner) record(method string) {
	mode := "none"
	if t.model.IsWriteLockedByCurrentGoroutine() {
		mode = "write"
	} else if t.model.IsReadLockedByCurrentGoroutine() {
		mode = "read"
	}
	t.Lock()
	t.calls = append(t.calls, method+"/"+mode)
	t.Unlock()
}

func (t *testInner) callLog() (calls []string) {
	t.Lock()
	calls = append(calls, t.calls...)
	t.Unlock()
	return
}

func (t *testInner) IsReadOnly() (bool, error) {
	t.record("IsReadOnly")
	return false, nil
}

func (t *testInner) GetEntry(name fs.EntryName) (*fs.Entry, error) {
	t.record("GetEntry")
	return &fs.Entry{Name: name, Type: fs.FileType, Size: 0}, nil
}

func (t *testInner) IsReadable(name fs.EntryName) (bool, error) {
	t.record("IsReadable")
	if nil != t.isReadableHook {
		return t.isReadableHook()
	}
	return true, nil
}

func (t *testInner) IsWritable(name fs.EntryName) (bool, error) {
	t.record("IsWritable")
	return true, nil
}

func (t *testInner) IsExecutable(name fs.EntryName) (bool, error) {
	t.record("IsExecutable")
	return false, nil
}

func (t *testInner) SetReadOnly(name fs.EntryName) error {
	t.record("SetReadOnly")
	return nil
}

func (t *testInner) SetTime(name fs.EntryName, accessSet fs.AccessSet, value time.Time, options fs.OutputOptions) (bool, error) {
	t.record("SetTime")
	return true, nil
}

func (t *testInner) Mknod(name fs.EntryName, entryType fs.Type, options fs.OutputOptions, template *fs.Entry) error {
	t.record("Mknod")
	return nil
}

func (t *testInner) Unlink(name fs.EntryName, options fs.OutputOptions) error {
	t.record("Unlink")
	if nil != t.unlinkHook {
		return t.unlinkHook()
	}
	return nil
}

func (t *testInner) Sync(options fs.SyncOptions) error {
	t.record("Sync")
	if nil != t.syncHook {
		return t.syncHook()
	}
	return nil
}

func (t *testInner) GetInputSocket(name fs.EntryName, options fs.InputOptions) fs.InputSocket {
	return &testInputSocket{inner: t, name: name}
}

func (t *testInner) GetOutputSocket(name fs.EntryName, options fs.OutputOptions, template *fs.Entry) fs.OutputSocket {
	return &testOutputSocket{inner: t, name: name}
}

type testInputSocket struct {
	inner *testInner
	name  fs.EntryName
}

func (s *testInputSocket) Target() (*fs.Entry, error) {
	s.inner.record("InputSocket.Target")
	return &fs.Entry{Name: s.name, Type: fs.FileType}, nil
}

func (s *testInputSocket) OpenReadStream() (fs.ReadStream, error) {
	s.inner.record("OpenReadStream")
	return &testStream{inner: s.inner}, nil
}

func (s *testInputSocket) OpenRandomReader() (fs.RandomReader, error) {
	s.inner.record("OpenRandomReader")
	return &testStream{inner: s.inner}, nil
}

type testOutputSocket struct {
	inner *testInner
	name  fs.EntryName
}

func (s *testOutputSocket) Target() (*fs.Entry, error) {
	s.inner.record("OutputSocket.Target")
	return &fs.Entry{Name: s.name, Type: fs.FileType}, nil
}

func (s *testOutputSocket) OpenWriteStream() (fs.WriteStream, error) {
	s.inner.record("OpenWriteStream")
	return &testStream{inner: s.inner}, nil
}

// testStream serves as read stream, write stream, and random reader.
type testStream struct {
	inner *testInner
}

func (s *testStream) Read(p []byte) (int, error)             { return 0, io.EOF }
func (s *testStream) Write(p []byte) (int, error)            { return len(p), nil }
func (s *testStream) ReadAt(p []byte, off int64) (int, error) { return 0, io.EOF }
func (s *testStream) Length() (uint64, error)                { return 0, nil }

func (s *testStream) Close() error {
	s.inner.record("Stream.Close")
	return nil
}

func newTestController(nodeID string) (controller *ControllerStruct, inner *testInner) {
	model := NewModel(nodeID)
	inner = &testInner{model: model}
	controller = NewController(inner, model)
	return
}

func TestQueriesRunReadLocked(t *testing.T) {
	assert := assert.New(t)

	controller, inner := newTestController("node:q")

	readable, err := controller.IsReadable("a")
	assert.Nil(err)
	assert.True(readable)

	entry, err := controller.GetEntry("a")
	assert.Nil(err)
	assert.Equal(fs.EntryName("a"), entry.Name)

	assert.Equal([]string{"IsReadable/read", "GetEntry/read"}, inner.callLog())
	assert.Zero(LockCount(), "no locks may survive a completed operation")
}

func TestMutationsRunWriteLocked(t *testing.T) {
	assert := assert.New(t)

	controller, inner := newTestController("node:m")

	err := controller.Mknod("f", fs.FileType, 0, nil)
	assert.Nil(err)
	err = controller.Unlink("f", 0)
	assert.Nil(err)
	err = controller.Sync(0)
	assert.Nil(err)

	assert.Equal([]string{"Mknod/write", "Unlink/write", "Sync/write"}, inner.callLog())
	assert.Zero(LockCount())
}

func TestEscalationRerunsUnderWriteLock(t *testing.T) {
	assert := assert.New(t)

	controller, inner := newTestController("node:esc")

	attempts := 0
	inner.isReadableHook = func() (bool, error) {
		attempts++
		if !inner.model.IsWriteLockedByCurrentGoroutine() {
			return false, blunder.NewError(blunder.NeedsWriteLockError, "cold cache")
		}
		return true, nil
	}

	readable, err := controller.IsReadable("a")
	assert.Nil(err)
	assert.True(readable)
	assert.Equal(2, attempts, "query must run once read locked, then once write locked")
	assert.Equal([]string{"IsReadable/read", "IsReadable/write"}, inner.callLog())
	assert.Zero(LockCount())
}

func TestEscalationFailureIsNotRetriedAgain(t *testing.T) {
	assert := assert.New(t)

	controller, inner := newTestController("node:esc2")

	attempts := 0
	inner.isReadableHook = func() (bool, error) {
		attempts++
		return false, blunder.NewError(blunder.NeedsWriteLockError, "still cold")
	}

	_, err := controller.IsReadable("a")
	assert.NotNil(err)
	assert.True(blunder.Is(err, blunder.NeedsWriteLockError))
	assert.Equal(2, attempts, "a write-locked query failing with the escalation signal must not loop")
	assert.Zero(LockCount())
}

func TestUpgradeInPlacePanics(t *testing.T) {
	assert := assert.New(t)

	controller, inner := newTestController("node:up")

	inner.isReadableHook = func() (bool, error) {
		// a mutation from inside a read-locked query is an in-place
		// upgrade attempt
		_ = controller.Unlink("victim", 0)
		return true, nil
	}

	assert.Panics(func() { _, _ = controller.IsReadable("a") })
}

func TestNestedCallsShareTheAccount(t *testing.T) {
	assert := assert.New(t)

	controller, inner := newTestController("node:nest")

	var depthInside uint64
	inner.unlinkHook = func() error {
		depthInside = LockCount()
		return nil
	}

	err := controller.Mknod("d", fs.DirectoryType, 0, nil)
	assert.Nil(err)

	// nest a write-locked call inside a write-locked call
	inner.syncHook = func() error {
		assert.Equal(uint64(1), LockCount())
		err := controller.Unlink("d", 0)
		assert.Nil(err)
		return nil
	}
	err = controller.Sync(0)
	assert.Nil(err)
	assert.Equal(uint64(2), depthInside, "nested op must run at depth 2")
	assert.Zero(LockCount())
}

func TestNestedForeignNodeContentionRetriesAndSucceeds(t *testing.T) {
	assert := assert.New(t)

	parent, parentInner := newTestController("node:parent")
	child, childInner := newTestController("node:child")
	_ = childInner

	// an unrelated goroutine holds the child node's lock for a while
	holding := make(chan struct{})
	var holdOnce sync.Once
	release := make(chan struct{})
	holderDone := make(chan struct{})
	go func() {
		_, _ = locked(func() (interface{}, error) {
			holdOnce.Do(func() { close(holding) })
			<-release
			return nil, nil
		}, writeHandle{model: child.model})
		close(holderDone)
	}()
	<-holding

	attempts := 0
	parentInner.unlinkHook = func() error {
		attempts++
		if 2 == attempts {
			// let the holder go before the retry's nested call
			close(release)
			<-holderDone
		}
		// the nested call into the child node must never block; while the
		// holder is active it loses its try-lock and the retry signal
		// unwinds through this frame
		return child.Unlink("c", 0)
	}

	err := parent.Unlink("p", 0)
	assert.Nil(err)
	assert.True(attempts >= 2, "first attempt must fail against the held child lock")
	assert.Zero(LockCount())
}

func TestNestedContentionFailsWithoutBlocking(t *testing.T) {
	assert := assert.New(t)

	model := NewModel("node:busy")

	holding := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_, _ = locked(func() (interface{}, error) {
			close(holding)
			<-release
			return nil, nil
		}, writeHandle{model: model})
		close(done)
	}()
	<-holding

	// fake a nested context: depth > 0 forces the non-blocking path
	account := fetchAccount()
	account.depth = 1
	start := time.Now()
	_, err := locked(func() (interface{}, error) {
		return nil, nil
	}, writeHandle{model: model})
	elapsed := time.Since(start)
	account.depth = 0
	releaseAccount()

	assert.NotNil(err)
	assert.True(blunder.Is(err, blunder.NeedsLockRetryError))
	assert.True(elapsed < time.Second, "nested acquisition must not block")

	close(release)
	<-done
}

func TestStreamCloseTakesItsOwnWriteLock(t *testing.T) {
	assert := assert.New(t)

	controller, inner := newTestController("node:stream")

	readStream, err := controller.GetInputSocket("a", 0).OpenReadStream()
	assert.Nil(err)
	assert.Zero(LockCount(), "no lock may be held while the stream is merely open")

	// close from a different goroutine than the opener
	closeErr := make(chan error)
	go func() {
		closeErr <- readStream.Close()
	}()
	assert.Nil(<-closeErr)

	assert.Equal([]string{"OpenReadStream/write", "Stream.Close/write"}, inner.callLog())
}

func TestOutputSocketTargetRunsWriteLocked(t *testing.T) {
	assert := assert.New(t)

	controller, inner := newTestController("node:sock")

	entry, err := controller.GetOutputSocket("o", 0, nil).Target()
	assert.Nil(err)
	assert.Equal(fs.EntryName("o"), entry.Name)

	writeStream, err := controller.GetOutputSocket("o", 0, nil).OpenWriteStream()
	assert.Nil(err)
	n, err := writeStream.Write([]byte("hi"))
	assert.Nil(err)
	assert.Equal(2, n)
	assert.Nil(writeStream.Close())

	assert.Equal([]string{"OutputSocket.Target/write", "OpenWriteStream/write", "Stream.Close/write"},
		inner.callLog())
}

func TestSyncFailedPropagates(t *testing.T) {
	assert := assert.New(t)

	controller, inner := newTestController("node:sync")

	inner.syncHook = func() error {
		return blunder.NewError(blunder.SyncFailedError, "backing store went away")
	}

	err := controller.Sync(0)
	assert.NotNil(err)
	assert.True(blunder.Is(err, blunder.SyncFailedError))
}

func TestSyncPanicsOnContractViolation(t *testing.T) {
	assert := assert.New(t)

	controller, inner := newTestController("node:sync2")

	inner.syncHook = func() error {
		return blunder.NewError(blunder.PermDeniedError, "not a sync error")
	}

	assert.Panics(func() { _ = controller.Sync(0) })
}

func TestConcurrentMutationsSerialize(t *testing.T) {
	assert := assert.New(t)

	controller, inner := newTestController("node:conc")

	var inCritical int32
	var maxInCritical int32
	var criticalMutex sync.Mutex
	inner.unlinkHook = func() error {
		criticalMutex.Lock()
		inCritical++
		if inCritical > maxInCritical {
			maxInCritical = inCritical
		}
		criticalMutex.Unlock()

		time.Sleep(time.Millisecond)

		criticalMutex.Lock()
		inCritical--
		criticalMutex.Unlock()
		return nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := controller.Unlink("x", 0)
			assert.Nil(err)
		}()
	}
	wg.Wait()

	assert.Equal(int32(1), maxInCritical, "write-locked operations must not overlap")
}
