package chain_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/midbel/xslchain/chain"
)

func TestHandoff(t *testing.T) {
	var (
		hand = chain.NewHandoff()
		grp  errgroup.Group
		got  []chain.Event
	)
	grp.Go(func() error {
		defer hand.Close()
		for _, k := range []chain.Kind{chain.KindValidationWarning, chain.KindTransformationSuccess} {
			if err := hand.Deliver(context.Background(), chain.Event{Kind: k}); err != nil {
				return err
			}
		}
		return nil
	})
	grp.Go(func() error {
		for e := range hand.Events() {
			got = append(got, e)
			hand.Ack()
		}
		return nil
	})
	require.NoError(t, grp.Wait())
	require.Len(t, got, 2)
	assert.Equal(t, chain.KindTransformationSuccess, got[1].Kind)
	assert.True(t, got[1].Kind.Advisory())
}

func TestHandoffCancel(t *testing.T) {
	hand := chain.NewHandoff()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := hand.Deliver(ctx, chain.Event{Kind: chain.KindValidationError})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestHandoffClosed(t *testing.T) {
	hand := chain.NewHandoff()
	hand.Close()
	hand.Close()
	for i := 0; i < 50; i++ {
		require.NotPanics(t, func() {
			err := hand.Deliver(context.Background(), chain.Event{Kind: chain.KindValidationWarning})
			assert.NoError(t, err)
			hand.Send(chain.Event{Kind: chain.KindValidationError})
		})
	}
	_, ok := <-hand.Events()
	assert.False(t, ok)
}

func TestErrorKinds(t *testing.T) {
	err := &chain.Error{Kind: chain.KindTransformError, File: "a.xsl", Err: errors.New("boom")}
	wrapped := errors.Join(errors.New("context"), err)

	assert.ErrorIs(t, wrapped, chain.ErrTransform)
	assert.NotErrorIs(t, wrapped, chain.ErrLoad)
	assert.Equal(t, chain.KindTransformError, chain.KindOf(wrapped))
	assert.Equal(t, chain.KindUnknown, chain.KindOf(errors.New("plain")))
	assert.Equal(t, []string{"a.xsl", "boom"}, err.Params())
	assert.Equal(t, "transform error: a.xsl: boom", err.Error())
}
