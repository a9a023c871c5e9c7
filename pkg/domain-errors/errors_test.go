package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	t.Run("direct code matches", func(t *testing.T) {
		err := New(CodeQuotaExceeded, "standard pool exhausted")
		assert.True(t, HasCode(err, CodeQuotaExceeded))
		assert.False(t, HasCode(err, CodeNotFound))
	})

	t.Run("wrapped code is found through the chain", func(t *testing.T) {
		inner := New(CodeConflict, "row version changed")
		outer := Wrap(inner, CodeInternal, "failed to reserve slot")
		assert.True(t, HasCode(outer, CodeConflict))
		assert.True(t, HasCode(outer, CodeInternal))
	})

	t.Run("uncoded error has no code", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("plain"), CodeInternal))
		assert.False(t, HasCode(nil, CodeInternal))
	})
}

func TestWrap(t *testing.T) {
	t.Run("nil in nil out", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, CodeInternal, "ignored"))
	})

	t.Run("preserves errors.Is on the cause", func(t *testing.T) {
		sentinel := errors.New("boom")
		err := Wrap(fmt.Errorf("ctx: %w", sentinel), CodeInternal, "wrapped")
		assert.True(t, errors.Is(err, sentinel))
	})
}

func TestCodeOf(t *testing.T) {
	require.Equal(t, CodeExpired, CodeOf(New(CodeExpired, "gone")))
	require.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
	require.Equal(t, CodeNotFound, CodeOf(Wrap(New(CodeConflict, "x"), CodeNotFound, "outer wins")))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeValidation:        http.StatusBadRequest,
		CodeInvalidInput:      http.StatusBadRequest,
		CodeUnauthorized:      http.StatusUnauthorized,
		CodeForbidden:         http.StatusForbidden,
		CodeNotFound:          http.StatusNotFound,
		CodeNotYetActive:      http.StatusNotFound,
		CodeExpired:           http.StatusGone,
		CodeInvalidTransition: http.StatusConflict,
		CodeQuotaExceeded:     http.StatusConflict,
		CodeConflict:          http.StatusConflict,
		CodeInternal:          http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, HTTPStatus(code), string(code))
	}
}
