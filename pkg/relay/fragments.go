package relay

import (
	"bytes"
	"errors"
	"io"
	"log/slog"

	"github.com/tidwall/gjson"
)

// Fragment is one decoded upstream line.
type Fragment struct {
	Text string
	Done bool
}

// FragmentReader splits an NDJSON body into fragments. Blank lines are
// ignored; lines that are not JSON objects are logged, counted and skipped.
type FragmentReader struct {
	r         io.Reader
	buf       []byte
	pending   []byte
	eof       bool
	malformed int
	// OnMalformed, when set, is called once per skipped line.
	OnMalformed func()
}

func NewFragmentReader(r io.Reader) *FragmentReader {
	return &FragmentReader{
		r:       r,
		buf:     make([]byte, 32*1024),
		pending: make([]byte, 0, 1024),
	}
}

func (f *FragmentReader) Malformed() int { return f.malformed }

// Next returns the next fragment or io.EOF once the body is exhausted.
func (f *FragmentReader) Next() (Fragment, error) {
	for {
		if idx := bytes.IndexByte(f.pending, '\n'); idx >= 0 {
			line := f.pending[:idx]
			f.pending = f.pending[idx+1:]
			if frag, ok := f.decode(line); ok {
				return frag, nil
			}
			continue
		}
		if f.eof {
			if len(f.pending) > 0 {
				line := f.pending
				f.pending = nil
				if frag, ok := f.decode(line); ok {
					return frag, nil
				}
			}
			return Fragment{}, io.EOF
		}
		n, err := f.r.Read(f.buf)
		if n > 0 {
			f.pending = append(f.pending, f.buf[:n]...)
		}
		if errors.Is(err, io.EOF) {
			f.eof = true
			continue
		}
		if err != nil {
			return Fragment{}, err
		}
	}
}

func (f *FragmentReader) decode(line []byte) (Fragment, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Fragment{}, false
	}
	if !gjson.ValidBytes(line) || !gjson.ParseBytes(line).IsObject() {
		f.malformed++
		if f.OnMalformed != nil {
			f.OnMalformed()
		}
		slog.Warn("skipping malformed upstream line", "bytes", len(line))
		return Fragment{}, false
	}
	res := gjson.GetManyBytes(line, "text", "done")
	return Fragment{Text: res[0].String(), Done: res[1].Bool()}, true
}
