package perr_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suniljakhar/mojop2p/pkg/perr"
)

func TestErrorFormatting(t *testing.T) {
	e := perr.New(perr.OpenTimeout, errors.New("no SYN-ACK within budget"))
	assert.Equal(t, "OpenTimeout: no SYN-ACK within budget", e.Error())
	assert.Equal(t, perr.OpenTimeout, perr.KindOf(e))
}

func TestKindErrorIs(t *testing.T) {
	err := perr.New(perr.Canceled, nil)
	require.True(t, errors.Is(err, perr.KindError(perr.Canceled)))
	require.False(t, errors.Is(err, perr.KindError(perr.AuthExhausted)))
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, perr.Kind(""), perr.KindOf(errors.New("boom")))
}
