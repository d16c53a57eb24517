// Package decoder implements the tolerant, line-framed stream decoder from
// spec.md §4.B: accumulate bytes, decode on CR/LF boundaries, cap the
// in-flight buffer, and cap total bytes read.
package decoder

import (
	"bufio"
	"io"
	"log/slog"
)

// DefaultMaxLineBytes is the default maximum in-flight line buffer (1 MiB).
const DefaultMaxLineBytes = 1 << 20

// ParseLine decodes one line's worth of bytes into a value, or reports an
// error if the line cannot be decoded — the caller drops the line with a
// warning rather than tearing down the stream.
type ParseLine func(line []byte) (any, error)

// JSONLine decodes line as JSON.
func JSONLine(line []byte) (any, error) {
	return jsonUnmarshalAny(line)
}

// IdentityLine returns line's contents as a string, never failing.
func IdentityLine(line []byte) (any, error) {
	return string(line), nil
}

// Options configures a Decoder.
type Options struct {
	// MaxLineBytes bounds the in-flight buffer; on overflow without a line
	// boundary the buffer is discarded and decoding resumes (oversize
	// payloads are dropped, the stream itself is not torn down). Zero
	// means DefaultMaxLineBytes.
	MaxLineBytes int
	// MaxTotalBytes caps the total bytes read from the stream; when
	// reached, decoding stops and a synthetic end event is emitted. Zero
	// means unbounded.
	MaxTotalBytes int64
	Parse         ParseLine
}

// EndOfStream is the synthetic value yielded when MaxTotalBytes is reached.
type EndOfStream struct{ Reason string }

// Decode reads r and calls yield for each successfully decoded item, in
// order, until r is exhausted, MaxTotalBytes is reached, or yield returns
// false. It never panics or returns an error for malformed input — bad
// lines are dropped with a slog.Warn and decoding continues.
func Decode(r io.Reader, opts Options, yield func(any) bool) {
	if opts.MaxLineBytes <= 0 {
		opts.MaxLineBytes = DefaultMaxLineBytes
	}
	if opts.Parse == nil {
		opts.Parse = JSONLine
	}

	br := bufio.NewReader(r)
	var buf []byte
	var totalRead int64

	emit := func(line []byte) bool {
		if len(line) == 0 {
			// Tie-break: an empty region between delimiters is silently
			// skipped.
			return true
		}
		v, err := opts.Parse(line)
		if err != nil {
			slog.Warn("decoder: dropping unparsable line", "err", err)
			return true
		}
		return yield(v)
	}

	for {
		if opts.MaxTotalBytes > 0 && totalRead >= opts.MaxTotalBytes {
			yield(EndOfStream{Reason: "max_total_bytes"})
			return
		}

		b, err := br.ReadByte()
		if err != nil {
			// Upstream ended: reparse the trailing fragment once.
			if len(buf) > 0 {
				emit(buf)
			}
			return
		}
		totalRead++

		if b == '\n' || b == '\r' {
			// CR+LF counts as a single delimiter: swallow a following LF
			// after a CR.
			if b == '\r' {
				if next, err := br.Peek(1); err == nil && len(next) == 1 && next[0] == '\n' {
					br.ReadByte()
					totalRead++
				}
			}
			line := buf
			buf = nil
			if !emit(line) {
				return
			}
			continue
		}

		buf = append(buf, b)
		if len(buf) > opts.MaxLineBytes {
			slog.Warn("decoder: line exceeded max buffer, discarding", "max_bytes", opts.MaxLineBytes)
			buf = nil
		}
	}
}
