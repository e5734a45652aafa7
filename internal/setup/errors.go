package setup

import "fmt"

// UserError reports a problem the user has to fix: a missing argument, a
// missing entry file, too many files to publish.
type UserError struct {
	Message string
}

func (e *UserError) Error() string {
	return e.Message
}

// Userf builds a UserError.
func Userf(format string, args ...any) error {
	return &UserError{Message: fmt.Sprintf(format, args...)}
}

// ExitError carries a delegate's non-zero exit code up to main.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exited with code %d", e.Code)
}
