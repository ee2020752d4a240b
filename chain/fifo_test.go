//go:build unix

package chain_test

import (
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/midbel/xslchain/chain"
)

func TestRunMissingStylesheetReadsInputOnce(t *testing.T) {
	input := filepath.Join(t.TempDir(), "input.xml")
	require.NoError(t, syscall.Mkfifo(input, 0o600))

	var (
		opens atomic.Int32
		stop  atomic.Bool
		done  = make(chan struct{})
	)
	go func() {
		defer close(done)
		for {
			w, err := os.OpenFile(input, os.O_WRONLY, 0)
			if err != nil {
				return
			}
			if stop.Load() {
				w.Close()
				return
			}
			opens.Add(1)
			io.WriteString(w, "<root><item/></root>")
			w.Close()
		}
	}()

	c := chain.New(chain.DefaultReaderConfiguration(), chain.TransformSettings{})
	_, err := c.Run(input, []chain.Stage{stage("missing.xsl")})
	got := opens.Load()

	stop.Store(true)
	r, rerr := os.Open(input)
	require.NoError(t, rerr)
	io.Copy(io.Discard, r)
	r.Close()
	<-done

	require.ErrorIs(t, err, chain.ErrNotFound)
	assert.Equal(t, chain.KindNotFound, chain.KindOf(err))
	assert.EqualValues(t, 1, got)
}
