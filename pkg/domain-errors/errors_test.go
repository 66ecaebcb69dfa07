package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapPreservesChain(t *testing.T) {
	base := errors.New("row not found")
	wrapped := Wrap(base, CodeNotFound, "shipment not found: shp-1")

	require.ErrorIs(t, wrapped, base)
	require.True(t, HasCode(wrapped, CodeNotFound))
	require.False(t, HasCode(wrapped, CodeConflict))
	require.Contains(t, wrapped.Error(), "shipment not found")
	require.Contains(t, wrapped.Error(), "row not found")
}

func TestWrapNil(t *testing.T) {
	require.Nil(t, Wrap(nil, CodeInternal, "ignored"))
}

func TestHasCodeWalksNestedCodes(t *testing.T) {
	inner := New(CodeConflict, "already confirmed")
	outer := Wrap(inner, CodeInternal, "store failure")

	require.True(t, HasCode(outer, CodeInternal))
	require.True(t, HasCode(outer, CodeConflict))
	require.False(t, HasCode(outer, CodeNotFound))
}

func TestHasCodeOnForeignError(t *testing.T) {
	require.False(t, HasCode(errors.New("plain"), CodeInternal))
	require.False(t, HasCode(nil, CodeInternal))

	// fmt wrapping around a coded error still resolves.
	wrapped := fmt.Errorf("context: %w", New(CodeValidation, "bad input"))
	require.True(t, HasCode(wrapped, CodeValidation))
}

func TestCodeOf(t *testing.T) {
	require.Equal(t, CodeNotFound, CodeOf(New(CodeNotFound, "missing")))
	require.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
}

func TestToHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeValidation:         http.StatusBadRequest,
		CodeBadRequest:         http.StatusBadRequest,
		CodeNotFound:           http.StatusNotFound,
		CodeConflict:           http.StatusConflict,
		CodeInvalidState:       http.StatusConflict,
		CodeInvariantViolation: http.StatusUnprocessableEntity,
		CodeTimeout:            http.StatusGatewayTimeout,
		CodeInternal:           http.StatusInternalServerError,
		Code("unknown"):        http.StatusInternalServerError,
	}
	for code, want := range cases {
		require.Equal(t, want, ToHTTPStatus(code), "code %q", code)
	}
}
