package decoder

import "io"

// maxEmptyReads matches the limit bufio uses before giving up on a reader that
// keeps returning (0, nil).
const maxEmptyReads = 100

// fullReader fills each Read completely unless the input ends first. Network
// reads come back in arbitrary sizes, and some codecs issue a single Read per
// call and drop whatever partial frame it returns.
type fullReader struct {
	r   io.Reader
	eof bool
}

// Read returns io.EOF only at a clean end of input. Any other input error,
// io.ErrUnexpectedEOF from a cut connection included, is passed through.
func (f *fullReader) Read(p []byte) (int, error) {
	n, empty := 0, 0
	for n < len(p) {
		m, err := f.r.Read(p[n:])
		n += m
		if err == io.EOF {
			f.eof = true
			return n, io.EOF
		}
		if err != nil {
			return n, err
		}
		if m == 0 {
			if empty++; empty >= maxEmptyReads {
				return n, io.ErrNoProgress
			}
		}
	}
	return n, nil
}
