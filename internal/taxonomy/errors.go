package taxonomy

import "fmt"

// ConfigurationError reports a taxonomy document that cannot be used.
type ConfigurationError struct {
	Source string
	Reason string
	Cause  error
}

func (e *ConfigurationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("taxonomy %s: %s: %v", e.Source, e.Reason, e.Cause)
	}
	return fmt.Sprintf("taxonomy %s: %s", e.Source, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Cause
}
