package bundle

import (
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// BuildError carries the bundler's formatted diagnostics verbatim.
type BuildError struct {
	Message string
}

func (e *BuildError) Error() string {
	return e.Message
}

func newBuildError(messages []api.Message, color bool) *BuildError {
	formatted := api.FormatMessages(messages, api.FormatMessagesOptions{
		Kind:  api.ErrorMessage,
		Color: color,
	})
	return &BuildError{Message: strings.TrimRight(strings.Join(formatted, ""), "\n")}
}
