package registry

type ErrInvalidActivity struct {
	msg string
}

func (e *ErrInvalidActivity) Error() string {
	return e.msg
}

type ErrActivityAlreadyRegistered struct {
	msg string
}

func (e *ErrActivityAlreadyRegistered) Error() string {
	return e.msg
}

type ErrActivityNotFound struct {
	msg string
}

func (e *ErrActivityNotFound) Error() string {
	return e.msg
}

type ErrServiceAlreadyRegistered struct {
	msg string
}

func (e *ErrServiceAlreadyRegistered) Error() string {
	return e.msg
}
