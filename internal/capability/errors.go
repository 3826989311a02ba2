package capability

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownCapability matches *UnknownCapabilityError.
	ErrUnknownCapability = errors.New("unknown capability")
	// ErrInvalidParameters matches *InvalidParametersError.
	ErrInvalidParameters = errors.New("invalid parameters")
)

// UnknownCapabilityError reports a name absent from the registry.
type UnknownCapabilityError struct {
	Name string
}

func (e *UnknownCapabilityError) Error() string {
	return fmt.Sprintf("unknown capability %q", e.Name)
}

// Is matches ErrUnknownCapability.
func (e *UnknownCapabilityError) Is(target error) bool {
	return target == ErrUnknownCapability
}

// InvalidParametersError lists every schema violation of one invocation.
type InvalidParametersError struct {
	Capability string
	Problems   []string
}

func (e *InvalidParametersError) Error() string {
	return fmt.Sprintf("invalid parameters for %q: %s", e.Capability, strings.Join(e.Problems, "; "))
}

// Is matches ErrInvalidParameters.
func (e *InvalidParametersError) Is(target error) bool {
	return target == ErrInvalidParameters
}
