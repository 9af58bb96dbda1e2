// Copyright (c) 2021-2026, The OpenVFS Authors.
// SPDX-License-Identifier: Apache-2.0

package memfs

import (
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/openvfs/lockfs/blunder"
	"github.com/openvfs/lockfs/conf"
	"github.com/openvfs/lockfs/fs"
	"github.com/openvfs/lockfs/fslock"
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

// newTestVolume returns a volume decorated with the locking layer, plus
// the undecorated volume for white box checks.
func newTestVolume(t *testing.T) (controller fs.Controller, vol *VolumeStruct) {
	model := fslock.NewModel("memfs:" + t.Name())
	vol = NewVolume(t.Name(), model)
	controller = fslock.NewController(vol, model)
	return
}

func TestEntryLifecycle(t *testing.T) {
	assert := assert.New(t)

	controller, _ := newTestVolume(t)

	err := controller.Mknod("docs", fs.DirectoryType, 0, nil)
	assert.Nil(err)
	err = controller.Mknod("docs/readme", fs.FileType, 0, nil)
	assert.Nil(err)

	entry, err := controller.GetEntry("docs")
	assert.Nil(err)
	assert.Equal(fs.DirectoryType, entry.Type)
	assert.Equal(fs.UnknownSize, entry.Size)
	assert.Equal([]fs.EntryName{"docs/readme"}, entry.Members)

	entry, err = controller.GetEntry("docs/readme")
	assert.Nil(err)
	assert.Equal(fs.FileType, entry.Type)
	assert.Equal(uint64(0), entry.Size)
	assert.False(entry.Times[fs.CreateAccess].IsZero())

	readable, err := controller.IsReadable("docs/readme")
	assert.Nil(err)
	assert.True(readable)
	writable, err := controller.IsWritable("docs/readme")
	assert.Nil(err)
	assert.True(writable)
	executable, err := controller.IsExecutable("docs")
	assert.Nil(err)
	assert.True(executable)

	err = controller.Unlink("docs", 0)
	assert.True(blunder.Is(err, blunder.NotEmptyError))

	err = controller.Unlink("docs/readme", 0)
	assert.Nil(err)
	err = controller.Unlink("docs", 0)
	assert.Nil(err)

	_, err = controller.GetEntry("docs")
	assert.True(blunder.Is(err, blunder.NotFoundError))
}

func TestMknodOptions(t *testing.T) {
	assert := assert.New(t)

	controller, _ := newTestVolume(t)

	// parent must exist unless CreateParents is given
	err := controller.Mknod("a/b/c", fs.FileType, 0, nil)
	assert.True(blunder.Is(err, blunder.NotFoundError))

	err = controller.Mknod("a/b/c", fs.FileType, fs.OutputOptionCreateParents, nil)
	assert.Nil(err)

	entry, err := controller.GetEntry("a/b")
	assert.Nil(err)
	assert.Equal(fs.DirectoryType, entry.Type)

	// exclusive create of an existing entry fails
	err = controller.Mknod("a/b/c", fs.FileType, fs.OutputOptionExclusive, nil)
	assert.True(blunder.Is(err, blunder.FileExistsError))

	// non-exclusive create of an existing entry of the same type is a no-op
	err = controller.Mknod("a/b/c", fs.FileType, 0, nil)
	assert.Nil(err)

	// but a type mismatch is an error
	err = controller.Mknod("a/b/c", fs.DirectoryType, 0, nil)
	assert.True(blunder.Is(err, blunder.FileExistsError))
}

func TestContentRoundTrip(t *testing.T) {
	assert := assert.New(t)

	controller, _ := newTestVolume(t)

	writeStream, err := controller.GetOutputSocket("greeting", 0, nil).OpenWriteStream()
	assert.Nil(err)
	n, err := writeStream.Write([]byte("hello, "))
	assert.Nil(err)
	assert.Equal(7, n)
	n, err = writeStream.Write([]byte("world"))
	assert.Nil(err)
	assert.Equal(5, n)
	err = writeStream.Close()
	assert.Nil(err)

	entry, err := controller.GetEntry("greeting")
	assert.Nil(err)
	assert.Equal(uint64(12), entry.Size)

	readStream, err := controller.GetInputSocket("greeting", 0).OpenReadStream()
	assert.Nil(err)
	content, err := io.ReadAll(readStream)
	assert.Nil(err)
	assert.Equal("hello, world", string(content))
	assert.Nil(readStream.Close())

	randomReader, err := controller.GetInputSocket("greeting", 0).OpenRandomReader()
	assert.Nil(err)
	length, err := randomReader.Length()
	assert.Nil(err)
	assert.Equal(uint64(12), length)
	buf := make([]byte, 5)
	n, err = randomReader.ReadAt(buf, 7)
	assert.True((nil == err) || (io.EOF == err))
	assert.Equal("world", string(buf[:n]))
	assert.Nil(randomReader.Close())
}

func TestAppendAndOverwrite(t *testing.T) {
	assert := assert.New(t)

	controller, _ := newTestVolume(t)

	writeStream, err := controller.GetOutputSocket("log", 0, nil).OpenWriteStream()
	assert.Nil(err)
	_, err = writeStream.Write([]byte("one"))
	assert.Nil(err)
	assert.Nil(writeStream.Close())

	writeStream, err = controller.GetOutputSocket("log", fs.OutputOptionAppend, nil).OpenWriteStream()
	assert.Nil(err)
	_, err = writeStream.Write([]byte("two"))
	assert.Nil(err)
	assert.Nil(writeStream.Close())

	readStream, err := controller.GetInputSocket("log", 0).OpenReadStream()
	assert.Nil(err)
	content, err := io.ReadAll(readStream)
	assert.Nil(err)
	assert.Equal("onetwo", string(content))
	assert.Nil(readStream.Close())

	// without the append option the content is replaced
	writeStream, err = controller.GetOutputSocket("log", 0, nil).OpenWriteStream()
	assert.Nil(err)
	_, err = writeStream.Write([]byte("fresh"))
	assert.Nil(err)
	assert.Nil(writeStream.Close())

	entry, err := controller.GetEntry("log")
	assert.Nil(err)
	assert.Equal(uint64(5), entry.Size)
}

func TestOpenReadStreamSnapshotIsolation(t *testing.T) {
	assert := assert.New(t)

	controller, _ := newTestVolume(t)

	writeStream, err := controller.GetOutputSocket("f", 0, nil).OpenWriteStream()
	assert.Nil(err)
	_, err = writeStream.Write([]byte("before"))
	assert.Nil(err)
	assert.Nil(writeStream.Close())

	readStream, err := controller.GetInputSocket("f", 0).OpenReadStream()
	assert.Nil(err)

	// rewrite the entry while the read stream is open
	writeStream, err = controller.GetOutputSocket("f", 0, nil).OpenWriteStream()
	assert.Nil(err)
	_, err = writeStream.Write([]byte("after"))
	assert.Nil(err)
	assert.Nil(writeStream.Close())

	content, err := io.ReadAll(readStream)
	assert.Nil(err)
	assert.Equal("before", string(content))
	assert.Nil(readStream.Close())
}

func TestColdAttributesEscalate(t *testing.T) {
	assert := assert.New(t)

	controller, vol := newTestVolume(t)

	err := controller.Mknod("f", fs.FileType, 0, nil)
	assert.Nil(err)

	// drop the attribute snapshots; the next metadata query finds a cold
	// snapshot under the read lock and must transparently escalate
	err = controller.Sync(fs.SyncOptionClearCache)
	assert.Nil(err)

	row, err := vol.fetchEntry("f")
	assert.Nil(err)
	assert.False(row.attrsCached)

	entry, err := controller.GetEntry("f")
	assert.Nil(err)
	assert.Equal(fs.EntryName("f"), entry.Name)
	assert.True(row.attrsCached, "the escalated query must have rebuilt the snapshot")
}

func TestColdAttributesFailUndecorated(t *testing.T) {
	assert := assert.New(t)

	// an undecorated volume with a model never holds the write lock, so a
	// cold snapshot query surfaces the escalation signal
	model := fslock.NewModel("memfs:undec:" + t.Name())
	vol := NewVolume(t.Name(), model)

	err := vol.Mknod("f", fs.FileType, 0, nil)
	assert.Nil(err)
	err = vol.Sync(fs.SyncOptionClearCache)
	assert.Nil(err)

	_, err = vol.GetEntry("f")
	assert.True(blunder.Is(err, blunder.NeedsWriteLockError))
}

func TestSyncFault(t *testing.T) {
	assert := assert.New(t)

	controller, vol := newTestVolume(t)

	err := controller.Mknod("f", fs.FileType, 0, nil)
	assert.Nil(err)
	assert.NotZero(vol.DirtyCount())

	vol.SetSyncFault("injected")
	err = controller.Sync(0)
	assert.NotNil(err)
	assert.True(blunder.Is(err, blunder.SyncFailedError))
	assert.NotZero(vol.DirtyCount(), "a failed sync must not clear the dirty state")

	// the fault is one-shot; the retried sync succeeds
	err = controller.Sync(0)
	assert.Nil(err)
	assert.Zero(vol.DirtyCount())
}

func TestReadOnlyVolume(t *testing.T) {
	assert := assert.New(t)

	controller, vol := newTestVolume(t)

	err := controller.Mknod("f", fs.FileType, 0, nil)
	assert.Nil(err)

	vol.SetVolumeReadOnly()

	readOnly, err := controller.IsReadOnly()
	assert.Nil(err)
	assert.True(readOnly)

	err = controller.Mknod("g", fs.FileType, 0, nil)
	assert.True(blunder.Is(err, blunder.ReadOnlyError))
	err = controller.Unlink("f", 0)
	assert.True(blunder.Is(err, blunder.ReadOnlyError))
	_, err = controller.GetOutputSocket("f", 0, nil).OpenWriteStream()
	assert.True(blunder.Is(err, blunder.ReadOnlyError))

	writable, err := controller.IsWritable("f")
	assert.Nil(err)
	assert.False(writable)
}

func TestReadOnlyEntry(t *testing.T) {
	assert := assert.New(t)

	controller, _ := newTestVolume(t)

	err := controller.Mknod("f", fs.FileType, 0, nil)
	assert.Nil(err)
	err = controller.SetReadOnly("f")
	assert.Nil(err)

	writable, err := controller.IsWritable("f")
	assert.Nil(err)
	assert.False(writable)

	_, err = controller.GetOutputSocket("f", 0, nil).OpenWriteStream()
	assert.True(blunder.Is(err, blunder.ReadOnlyError))
	err = controller.Unlink("f", 0)
	assert.True(blunder.Is(err, blunder.ReadOnlyError))
}

func TestSetTime(t *testing.T) {
	assert := assert.New(t)

	controller, _ := newTestVolume(t)

	err := controller.Mknod("f", fs.FileType, 0, nil)
	assert.Nil(err)

	when := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	ok, err := controller.SetTime("f", fs.ReadAccessSet|fs.WriteAccessSet, when, 0)
	assert.Nil(err)
	assert.True(ok)

	entry, err := controller.GetEntry("f")
	assert.Nil(err)
	assert.Equal(when, entry.Times[fs.ReadAccess])
	assert.Equal(when, entry.Times[fs.WriteAccess])
	assert.NotEqual(when, entry.Times[fs.CreateAccess])
}
