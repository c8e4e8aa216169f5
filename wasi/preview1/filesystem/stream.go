package filesystem

import (
	"errors"
	"io"
)

// readStream fills iovs in order from r, stopping at the first short read.
// Bytes already read are reported even when a later read fails.
func readStream(r io.Reader, iovs [][]byte) (int, error) {
	total := 0
	for _, iov := range iovs {
		if len(iov) == 0 {
			continue
		}
		n, err := r.Read(iov)
		total += n
		if errors.Is(err, io.EOF) {
			return total, nil
		}
		if err != nil {
			if total > 0 {
				return total, nil
			}
			return 0, err
		}
		if n < len(iov) {
			break
		}
	}
	return total, nil
}

// writeStream writes iovs in order to w. Once a byte is accepted a later
// failure shortens the count instead of failing the call.
func writeStream(w io.Writer, iovs [][]byte) (int, error) {
	total := 0
	for _, iov := range iovs {
		if len(iov) == 0 {
			continue
		}
		n, err := w.Write(iov)
		total += n
		if err != nil {
			if total > 0 {
				return total, nil
			}
			return 0, err
		}
	}
	return total, nil
}
