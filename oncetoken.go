// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package ioproposer

// IoResult is the outcome of a single Read or Write attempt through a
// once-token. Closed means the underlying stream no longer exists (or the
// OS reported a fatal error); otherwise Length is the number of bytes the
// OS accepted or produced (possibly 0 on WouldBlock) and WillClose is the
// half's discarded state as observed *before* the call — i.e. whether
// readiness already announced EOF/half-close for this direction.
type IoResult struct {
	Closed    bool
	Length    int
	WillClose bool
}

// ReadOnce authorizes exactly one non-blocking read against the stream it
// was minted for. It must be consumed by calling Read, or released by
// calling Discard; both are one-shot, and both clear the stream's
// "outstanding" flag for this direction. Read leaves the half open for
// future readiness events. Discard permanently shuts the half down
// (OS half-shutdown, tolerating "not connected").
//
// A ReadOnce that is neither read nor discarded before it is garbage
// collected is discarded automatically by a finalizer. That is only a leak
// backstop: when the garbage collector runs it is not defined.
type ReadOnce interface {
	Read(buf []byte) IoResult
	Discard()
}

// WriteOnce is the write-direction counterpart of ReadOnce.
type WriteOnce interface {
	Write(data []byte) IoResult
	Discard()
}
