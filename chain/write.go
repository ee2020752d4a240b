package chain

import (
	"bytes"
	"io"
	"os"
	"strings"
)

var utf8Bom = []byte{0xEF, 0xBB, 0xBF}

// Write saves the body of res into file. Unless writeBom is set, a UTF-8
// byte order mark at the start of the body is not written. The body is
// released whatever the outcome.
func Write(res *Result, file string, writeBom bool) error {
	defer res.Release()

	w, err := os.Create(file)
	if err != nil {
		return newError(KindOutputFileError, file, err)
	}
	if isUtf8(res.Encoding) && !writeBom {
		skipBom(res.Body)
	}
	if _, err := io.Copy(w, res.Body); err != nil {
		w.Close()
		return newError(KindOutputFileError, file, err)
	}
	if err := w.Close(); err != nil {
		return newError(KindOutputFileError, file, err)
	}
	return nil
}

// skipBom moves past the first three bytes of body only when they are a
// byte order mark.
func skipBom(body io.ReadSeeker) {
	pos, err := body.Seek(0, io.SeekCurrent)
	if err != nil {
		return
	}
	head := make([]byte, len(utf8Bom))
	n, _ := io.ReadFull(body, head)
	if n == len(utf8Bom) && bytes.Equal(head, utf8Bom) {
		return
	}
	body.Seek(pos, io.SeekStart)
}

func isUtf8(enc string) bool {
	switch strings.ToLower(enc) {
	case "", "utf-8", "utf8":
		return true
	default:
		return false
	}
}
