package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for simulation operations.
var (
	// ErrDomain indicates a rate function was evaluated outside its domain.
	ErrDomain = errors.New("dynamo: rate function evaluated outside its domain")

	// ErrIntegration indicates the solver could not complete the requested span.
	ErrIntegration = errors.New("dynamo: integration failed")

	// ErrDegenerateDilution indicates a dilution fraction could not be formed
	// because the culture density at the segment boundary is zero.
	ErrDegenerateDilution = errors.New("dynamo: degenerate dilution (zero density at segment boundary)")

	// ErrConfiguration indicates an invalid parameter or request.
	ErrConfiguration = errors.New("dynamo: invalid configuration")

	// ErrNonPositiveDensity indicates log10(X) was requested for X <= 0.
	ErrNonPositiveDensity = errors.New("dynamo: log10 of non-positive density")

	// ErrStepRejected is returned by adaptive steppers when the local error
	// estimate exceeds the tolerance. It never escapes the integration driver.
	ErrStepRejected = errors.New("dynamo: adaptive step rejected")
)

// DomainError reports which quantity left its domain and the offending value.
type DomainError struct {
	Func  string
	Arg   string
	Value float64
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("dynamo: %s undefined for %s=%g", e.Func, e.Arg, e.Value)
}

func (e *DomainError) Unwrap() error { return ErrDomain }

// IntegrationError wraps an integration failure with its position.
type IntegrationError struct {
	Step    int
	Time    float64
	State   State
	Reason  string
	Wrapped error
}

func (e *IntegrationError) Error() string {
	msg := fmt.Sprintf("dynamo: integration failed at step %d (t=%.6g): %s", e.Step, e.Time, e.Reason)
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

// Is matches ErrIntegration in addition to the wrapped cause.
func (e *IntegrationError) Is(target error) bool { return target == ErrIntegration }

func (e *IntegrationError) Unwrap() error { return e.Wrapped }

// DegenerateDilutionError identifies the segment boundary where the
// dilution fraction was undefined.
type DegenerateDilutionError struct {
	Segment int
	Time    float64
	Density float64
}

func (e *DegenerateDilutionError) Error() string {
	return fmt.Sprintf("dynamo: degenerate dilution after segment %d (t=%.6g): density %g", e.Segment, e.Time, e.Density)
}

func (e *DegenerateDilutionError) Unwrap() error { return ErrDegenerateDilution }

// ConfigError names the rejected field.
type ConfigError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("dynamo: invalid %s (%v): %s", e.Field, e.Value, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrConfiguration }
