package workflowerrors

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	goerrors "github.com/go-errors/errors"
	"github.com/stretchr/testify/require"
)

func Test_NewError_Nil(t *testing.T) {
	err := FromError(nil)
	require.Nil(t, err)
}

func Test_NewError_DoesNotWrapAgain(t *testing.T) {
	err := FromError(errors.New("foo"))

	err2 := FromError(err)
	require.Same(t, err, err2)
}

func Test_NewError_DoesWrap(t *testing.T) {
	input := errors.New("foo")
	e := FromError(input)

	var expectedType *Error
	require.ErrorAs(t, e, &expectedType)
	require.EqualError(t, e, input.Error())
	require.Nil(t, e.Cause)
}

func Test_NewError_KeepsCauseChain(t *testing.T) {
	input := fmt.Errorf("outer: %w", errors.New("inner"))
	e := FromError(input)

	require.EqualError(t, e, "outer: inner")
	require.EqualError(t, errors.Unwrap(e), "inner")
}

func Test_JSONRoundTrip(t *testing.T) {
	e := FromError(fmt.Errorf("outer: %w", errors.New("inner")))

	b, err := json.Marshal(e)
	require.NoError(t, err)

	var out Error
	require.NoError(t, json.Unmarshal(b, &out))
	require.Equal(t, "outer: inner", out.Message)
	require.EqualError(t, out.Unwrap(), "inner")
}

func Test_RoundTrip(t *testing.T) {
	input := NewPanicError("foo")
	e := FromError(input)

	output := ToError(e)
	require.Equal(t, input, output)
}

func Test_FromError_KeepsGoErrorsStack(t *testing.T) {
	e := FromError(goerrors.New("boom"))

	require.Equal(t, "boom", e.Message)
	require.NotEmpty(t, e.Stacktrace)
}
