// Copyright (c) 2021-2026, The OpenVFS Authors.
// SPDX-License-Identifier: Apache-2.0

package memfs

import (
	"io"

	"github.com/openvfs/lockfs/blunder"
	"github.com/openvfs/lockfs/fs"
)

type inputSocketStruct struct {
	vol     *VolumeStruct
	name    fs.EntryName
	options fs.InputOptions
}

func (vol *VolumeStruct) GetInputSocket(name fs.EntryName, options fs.InputOptions) (inputSocket fs.InputSocket) {
	inputSocket = &inputSocketStruct{vol: vol, name: name, options: options}
	return
}

func (socket *inputSocketStruct) Target() (entry *fs.Entry, err error) {
	entry, err = socket.vol.GetEntry(socket.name)
	return
}

// fetchFileRow resolves the socket's name to a file entry.
func (socket *inputSocketStruct) fetchFileRow() (row *entryStruct, err error) {
	row, err = socket.vol.fetchEntry(socket.name)
	if nil != err {
		return
	}
	if fs.FileType != row.entryType {
		err = blunder.NewError(blunder.IsDirError, "entry %q is not a file", socket.name)
	}
	return
}

func (socket *inputSocketStruct) OpenReadStream() (readStream fs.ReadStream, err error) {
	row, err := socket.fetchFileRow()
	if nil != err {
		return
	}

	// snapshot the content so the stream stays consistent if the entry is
	// rewritten while the stream is open
	content := make([]byte, len(row.content))
	copy(content, row.content)
	readStream = &readStreamStruct{content: content}
	return
}

func (socket *inputSocketStruct) OpenRandomReader() (randomReader fs.RandomReader, err error) {
	row, err := socket.fetchFileRow()
	if nil != err {
		return
	}

	content := make([]byte, len(row.content))
	copy(content, row.content)
	randomReader = &randomReaderStruct{content: content}
	return
}

type outputSocketStruct struct {
	vol      *VolumeStruct
	name     fs.EntryName
	options  fs.OutputOptions
	template *fs.Entry
}

func (vol *VolumeStruct) GetOutputSocket(name fs.EntryName, options fs.OutputOptions, template *fs.Entry) (outputSocket fs.OutputSocket) {
	outputSocket = &outputSocketStruct{vol: vol, name: name, options: options, template: template}
	return
}

func (socket *outputSocketStruct) Target() (entry *fs.Entry, err error) {
	entry, err = socket.vol.GetEntry(socket.name)
	return
}

// OpenWriteStream creates the target entry if needed and returns a stream
// buffering writes; the buffered content is committed when the stream is
// closed.
func (socket *outputSocketStruct) OpenWriteStream() (writeStream fs.WriteStream, err error) {
	vol := socket.vol

	if vol.readOnly {
		err = blunder.NewError(blunder.ReadOnlyError, "volume %s is read-only", vol.volumeName)
		return
	}

	row, fetchErr := vol.fetchEntry(socket.name)
	if nil != fetchErr {
		if blunder.IsNot(fetchErr, blunder.NotFoundError) {
			err = fetchErr
			return
		}
		err = vol.Mknod(socket.name, fs.FileType, socket.options, socket.template)
		if nil != err {
			return
		}
		row, err = vol.fetchEntry(socket.name)
		if nil != err {
			return
		}
	} else {
		if fs.FileType != row.entryType {
			err = blunder.NewError(blunder.IsDirError, "entry %q is not a file", socket.name)
			return
		}
		if row.readOnly {
			err = blunder.NewError(blunder.ReadOnlyError, "entry %q is read-only", socket.name)
			return
		}
		if 0 != (socket.options & fs.OutputOptionExclusive) {
			err = blunder.NewError(blunder.FileExistsError, "entry %q already exists", socket.name)
			return
		}
	}

	stream := &writeStreamStruct{vol: vol, row: row}
	if 0 != (socket.options & fs.OutputOptionAppend) {
		stream.buffer = append(stream.buffer, row.content...)
	}
	writeStream = stream
	return
}

type readStreamStruct struct {
	content []byte
	offset  int
	closed  bool
}

func (stream *readStreamStruct) Read(p []byte) (n int, err error) {
	if stream.closed {
		err = blunder.NewError(blunder.BadFileError, "read stream is closed")
		return
	}
	if stream.offset >= len(stream.content) {
		err = io.EOF
		return
	}
	n = copy(p, stream.content[stream.offset:])
	stream.offset += n
	return
}

func (stream *readStreamStruct) Close() (err error) {
	stream.closed = true
	return
}

type randomReaderStruct struct {
	content []byte
	closed  bool
}

func (reader *randomReaderStruct) ReadAt(p []byte, off int64) (n int, err error) {
	if reader.closed {
		err = blunder.NewError(blunder.BadFileError, "random reader is closed")
		return
	}
	if (off < 0) || (off > int64(len(reader.content))) {
		err = blunder.NewError(blunder.BadSeekError, "offset %d out of range", off)
		return
	}
	n = copy(p, reader.content[off:])
	if n < len(p) {
		err = io.EOF
	}
	return
}

func (reader *randomReaderStruct) Length() (length uint64, err error) {
	if reader.closed {
		err = blunder.NewError(blunder.BadFileError, "random reader is closed")
		return
	}
	length = uint64(len(reader.content))
	return
}

func (reader *randomReaderStruct) Close() (err error) {
	reader.closed = true
	return
}

type writeStreamStruct struct {
	vol    *VolumeStruct
	row    *entryStruct
	buffer []byte
	closed bool
}

func (stream *writeStreamStruct) Write(p []byte) (n int, err error) {
	if stream.closed {
		err = blunder.NewError(blunder.BadFileError, "write stream is closed")
		return
	}
	stream.buffer = append(stream.buffer, p...)
	n = len(p)
	return
}

// Close commits the buffered content to the entry.
func (stream *writeStreamStruct) Close() (err error) {
	if stream.closed {
		err = blunder.NewError(blunder.BadFileError, "write stream is already closed")
		return
	}
	stream.closed = true
	stream.row.content = stream.buffer
	stream.vol.markDirty(stream.row)
	return
}
