// Copyright (c) 2021-2026, The OpenVFS Authors.
// SPDX-License-Identifier: Apache-2.0

package fslock

import (
	"github.com/openvfs/lockfs/fs"
)

// Socket decorators. Target resolution and stream opening each run as a
// write-locked operation; the streams themselves run undecorated (no lock
// is held while a stream is open) except for Close, which takes a fresh
// independent write-locked call. That matters when the goroutine closing
// the stream is not the one that opened it, and it gives a close that
// loses a nested try-lock the same retry treatment as any other call.

type inputSocketStruct struct {
	controller *ControllerStruct
	inner      fs.InputSocket
}

func (socket *inputSocketStruct) Target() (entry *fs.Entry, err error) {
	result, err := socket.controller.writeLocked(func() (interface{}, error) {
		return socket.inner.Target()
	})
	if nil == err {
		entry = result.(*fs.Entry)
	}
	return
}

func (socket *inputSocketStruct) OpenReadStream() (readStream fs.ReadStream, err error) {
	result, err := socket.controller.writeLocked(func() (interface{}, error) {
		return socket.inner.OpenReadStream()
	})
	if nil == err {
		readStream = &lockReadStream{
			controller: socket.controller,
			inner:      result.(fs.ReadStream),
		}
	}
	return
}

func (socket *inputSocketStruct) OpenRandomReader() (randomReader fs.RandomReader, err error) {
	result, err := socket.controller.writeLocked(func() (interface{}, error) {
		return socket.inner.OpenRandomReader()
	})
	if nil == err {
		randomReader = &lockRandomReader{
			controller: socket.controller,
			inner:      result.(fs.RandomReader),
		}
	}
	return
}

type outputSocketStruct struct {
	controller *ControllerStruct
	inner      fs.OutputSocket
}

func (socket *outputSocketStruct) Target() (entry *fs.Entry, err error) {
	result, err := socket.controller.writeLocked(func() (interface{}, error) {
		return socket.inner.Target()
	})
	if nil == err {
		entry = result.(*fs.Entry)
	}
	return
}

func (socket *outputSocketStruct) OpenWriteStream() (writeStream fs.WriteStream, err error) {
	result, err := socket.controller.writeLocked(func() (interface{}, error) {
		return socket.inner.OpenWriteStream()
	})
	if nil == err {
		writeStream = &lockWriteStream{
			controller: socket.controller,
			inner:      result.(fs.WriteStream),
		}
	}
	return
}

// closeLocked closes inner as a fresh write-locked operation of the
// calling goroutine.
func closeLocked(controller *ControllerStruct, inner interface{ Close() error }) (err error) {
	_, err = controller.writeLocked(func() (interface{}, error) {
		return nil, inner.Close()
	})
	return
}

type lockReadStream struct {
	controller *ControllerStruct
	inner      fs.ReadStream
}

func (stream *lockReadStream) Read(p []byte) (n int, err error) {
	n, err = stream.inner.Read(p)
	return
}

func (stream *lockReadStream) Close() (err error) {
	err = closeLocked(stream.controller, stream.inner)
	return
}

type lockWriteStream struct {
	controller *ControllerStruct
	inner      fs.WriteStream
}

func (stream *lockWriteStream) Write(p []byte) (n int, err error) {
	n, err = stream.inner.Write(p)
	return
}

func (stream *lockWriteStream) Close() (err error) {
	err = closeLocked(stream.controller, stream.inner)
	return
}

type lockRandomReader struct {
	controller *ControllerStruct
	inner      fs.RandomReader
}

func (reader *lockRandomReader) ReadAt(p []byte, off int64) (n int, err error) {
	n, err = reader.inner.ReadAt(p, off)
	return
}

func (reader *lockRandomReader) Length() (length uint64, err error) {
	length, err = reader.inner.Length()
	return
}

func (reader *lockRandomReader) Close() (err error) {
	err = closeLocked(reader.controller, reader.inner)
	return
}
