package workflowerrors

import (
	"errors"
	"reflect"
)

// getErrorType returns the type name of err. Anonymous wrappers created by fmt.Errorf and
// errors.Join are looked through, "" is returned for plain errors.New errors.
func getErrorType(err error) string {
	for err != nil {
		t := reflect.TypeOf(err)
		for t.Kind() == reflect.Ptr {
			t = t.Elem()
		}

		switch {
		case t.PkgPath() == "errors" && t.Name() == "errorString":
			return ""
		case t.PkgPath() == "fmt" || (t.PkgPath() == "errors" && t.Name() == "joinError"):
			next := errors.Unwrap(err)
			if next == nil {
				if j, ok := err.(interface{ Unwrap() []error }); ok && len(j.Unwrap()) > 0 {
					next = j.Unwrap()[0]
				}
			}

			if next == nil {
				return ""
			}

			err = next
		default:
			return t.Name()
		}
	}

	return ""
}
