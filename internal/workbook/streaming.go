package workbook

// streaming.go provides reader wrappers applied to every raw sheet file
// before CSV parsing:
//
//   - bomReader strips a UTF-8 byte order mark (0xEF 0xBB 0xBF), common in
//     files exported from Windows spreadsheet tools
//   - utf8Reader replaces invalid UTF-8 bytes with '?' on the fly, in
//     constant memory, so one bad byte in a 30MB sheet cannot fail the run
//
// SanitizeReader applies both in the correct order.

import (
	"bufio"
	"io"
	"unicode/utf8"
)

// SanitizeReader wraps r so downstream CSV parsing sees BOM-free, valid
// UTF-8 input.
func SanitizeReader(r io.Reader) io.Reader {
	return newUTF8Reader(newBOMReader(r))
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// bomReader skips a leading UTF-8 BOM if present.
type bomReader struct {
	r       *bufio.Reader
	checked bool
}

func newBOMReader(r io.Reader) *bomReader {
	return &bomReader{r: bufio.NewReader(r)}
}

func (b *bomReader) Read(p []byte) (int, error) {
	if !b.checked {
		b.checked = true
		head, err := b.r.Peek(len(utf8BOM))
		if err == nil && head[0] == utf8BOM[0] && head[1] == utf8BOM[1] && head[2] == utf8BOM[2] {
			b.r.Discard(len(utf8BOM))
		}
	}
	return b.r.Read(p)
}

// utf8Reader replaces invalid UTF-8 sequences with '?'. Replacement uses a
// single byte so sanitizing never expands the data, keeping Read semantics
// simple for streaming.
type utf8Reader struct {
	r *bufio.Reader
}

func newUTF8Reader(r io.Reader) *utf8Reader {
	return &utf8Reader{r: bufio.NewReaderSize(r, 32*1024)}
}

func (u *utf8Reader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		r, size, err := u.r.ReadRune()
		if err != nil {
			if n > 0 {
				return n, nil
			}
			return 0, err
		}
		if r == utf8.RuneError && size == 1 {
			p[n] = '?'
			n++
			continue
		}
		if n+size > len(p) {
			// Not enough room for this rune; put it back for the next call.
			u.r.UnreadRune()
			return n, nil
		}
		n += utf8.EncodeRune(p[n:], r)
	}
	return n, nil
}
