package xpath

import (
	"io"
	"strings"
)

func stringsReader(str string) io.Reader {
	return strings.NewReader(str)
}
