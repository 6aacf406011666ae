// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package inode

import (
	"io"

	"github.com/go-pintos/diskfs/internal/blockdev"
)

// streamChunk is the buffer size Writer.ReadFrom/Reader.WriteTo copy in,
// sized to span many sectors per cache round-trip rather than one.
const streamChunk = 128 * blockdev.SectorSize

// Writer adapts an Inode's offset-based WriteAt into a sequential io.Writer,
// so callers can stream data in (via io.Copy, which prefers ReadFrom below)
// rather than buffering a whole file in memory before calling WriteAt once.
type Writer struct {
	n      *Inode
	offset uint64
}

// NewWriter returns an io.Writer that writes sequentially into n starting at
// offset, overwriting any existing bytes there.
func NewWriter(n *Inode, offset uint64) *Writer {
	return &Writer{n: n, offset: offset}
}

func (w *Writer) Write(p []byte) (int, error) {
	written, err := w.n.WriteAt(p, w.offset)
	w.offset += uint64(written)
	if err != nil {
		return written, err
	}
	if written != len(p) {
		return written, io.ErrShortWrite
	}
	return written, nil
}

// ReadFrom drains src in streamChunk-sized pieces, letting io.Copy(w, src)
// avoid allocating and copying through an intermediate caller-sized buffer.
func (w *Writer) ReadFrom(src io.Reader) (int64, error) {
	buf := make([]byte, streamChunk)
	var total int64
	for {
		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := w.Write(buf[:nr])
			total += int64(nw)
			if werr != nil {
				return total, werr
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				return total, nil
			}
			return total, rerr
		}
	}
}

// Reader adapts an Inode's offset-based ReadAt into a sequential io.Reader.
type Reader struct {
	n      *Inode
	offset uint64
}

// NewReader returns an io.Reader over n's full contents starting at offset.
func NewReader(n *Inode, offset uint64) *Reader {
	return &Reader{n: n, offset: offset}
}

func (r *Reader) Read(p []byte) (int, error) {
	if r.offset >= r.n.Length() {
		return 0, io.EOF
	}
	read, err := r.n.ReadAt(p, r.offset)
	r.offset += uint64(read)
	if err != nil {
		return read, err
	}
	if read == 0 {
		return 0, io.EOF
	}
	return read, nil
}

// WriteTo streams r's remaining contents to dst in streamChunk-sized
// pieces, letting io.Copy(dst, r) avoid an intermediate caller-sized buffer.
func (r *Reader) WriteTo(dst io.Writer) (int64, error) {
	buf := make([]byte, streamChunk)
	var total int64
	for {
		nr, rerr := r.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			total += int64(nw)
			if werr != nil {
				return total, werr
			}
			if nw != nr {
				return total, io.ErrShortWrite
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				return total, nil
			}
			return total, rerr
		}
	}
}
