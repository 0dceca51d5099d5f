package workflowerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_getErrorType_stringError(t *testing.T) {
	require.Empty(t, getErrorType(errors.New("test")))
}

func Test_getErrorType_error(t *testing.T) {
	err := FromError(errors.New("test"))

	etype := getErrorType(err)
	require.Equal(t, "Error", etype)
}

type CustomError struct {
	msg string
}

func (ce *CustomError) Error() string {
	return ce.msg
}

func Test_getErrorType_custom(t *testing.T) {
	ce := &CustomError{msg: "test"}

	etype := getErrorType(ce)
	require.Equal(t, "CustomError", etype)
}

func Test_getErrorType_wrapped(t *testing.T) {
	err := fmt.Errorf("charging card: %w", &CustomError{msg: "declined"})
	require.Equal(t, "CustomError", getErrorType(err))

	require.Empty(t, getErrorType(fmt.Errorf("no cause")))
	require.Empty(t, getErrorType(fmt.Errorf("wrapped: %w", errors.New("plain"))))
}

func Test_getErrorType_joined(t *testing.T) {
	err := errors.Join(&CustomError{msg: "first"}, errors.New("second"))
	require.Equal(t, "CustomError", getErrorType(err))
}
