package workflowerrors

import (
	"strings"

	goerrors "github.com/go-errors/errors"
)

// stack returns the formatted call stack of the caller, skipping the given number of frames
// in addition to stack itself.
func stack(skip int) string {
	goerr := goerrors.Wrap("", skip+1)

	var sb strings.Builder
	for _, frame := range goerr.StackFrames() {
		sb.WriteString(frame.String())
	}

	return sb.String()
}
