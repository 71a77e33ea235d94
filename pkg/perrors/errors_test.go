package perrors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTypeOfClassifiesKnownSentinels(t *testing.T) {
	require := require.New(t)
	require.Equal(ErrorTypeValidation, TypeOf(ErrAmountZero))
	require.Equal(ErrorTypeConflict, TypeOf(ErrAlreadySettled))
	require.Equal(ErrorTypeNotFound, TypeOf(ErrOfferNotFound))
	require.Equal(ErrorTypeUnauthorized, TypeOf(ErrUnauthorizedParty))
	require.Equal(ErrorTypeCustody, TypeOf(ErrUserKeyMismatch))
	require.Equal(ErrorTypeChain, TypeOf(ErrChainTimeout))
	require.Equal(ErrorTypeStorage, TypeOf(ErrStorageUnavailable))
	require.Equal(ErrorTypeConfiguration, TypeOf(ErrMissingConfig))
}

func TestTypeOfUnwrapsWrappedErrors(t *testing.T) {
	wrapped := Wrap("settling user leg", ErrAlreadySettled)
	require.Equal(t, ErrorTypeConflict, TypeOf(wrapped))
	require.True(t, errors.Is(wrapped, ErrAlreadySettled))
}

func TestTypeOfUnknownForUnrecognizedError(t *testing.T) {
	require.Equal(t, ErrorTypeUnknown, TypeOf(errors.New("some other error")))
}

func TestHTTPStatusMapsEachCategory(t *testing.T) {
	require := require.New(t)
	require.Equal(http.StatusBadRequest, HTTPStatus(ErrAmountZero))
	require.Equal(http.StatusConflict, HTTPStatus(ErrOfferAlreadyAccepted))
	require.Equal(http.StatusNotFound, HTTPStatus(ErrEscrowNotFound))
	require.Equal(http.StatusUnauthorized, HTTPStatus(ErrInvalidSignature))
	require.Equal(http.StatusForbidden, HTTPStatus(ErrPDAMismatch))
	require.Equal(http.StatusBadGateway, HTTPStatus(ErrChainRejected))
	require.Equal(http.StatusInternalServerError, HTTPStatus(ErrStorageUnavailable))
	require.Equal(http.StatusInternalServerError, HTTPStatus(errors.New("unmapped")))
}

func TestWrapNilReturnsNil(t *testing.T) {
	require.NoError(t, Wrap("context", nil))
}
