// Package admission provides the filter chain that validates manual
// track additions before they reach the play queue.
package admission

import "context"

// Request represents a manual track addition to be validated.
type Request struct {
	Fingerprint string
	URI         string
}

// Result represents the result of a filter check.
type Result struct {
	Accepted bool
	Code     string // e.g., "already_played", "user_queue_limit"
}

// Accept returns an accepted result.
func Accept() Result {
	return Result{Accepted: true}
}

// Reject returns a rejected result with the given code.
func Reject(code string) Result {
	return Result{Accepted: false, Code: code}
}

// Filter is the interface for admission filters.
type Filter interface {
	// Name returns the filter name (used in config).
	Name() string
	// Description returns a human-readable description.
	Description() string
	// ReturnCodes returns the codes this filter can return.
	ReturnCodes() []string
	// ValidateConfig validates the filter configuration.
	ValidateConfig(settings map[string]any) error
	// Check performs the filter check.
	Check(ctx context.Context, req Request) Result
}

// registry holds registered filter factories.
var registry = make(map[string]func() Filter)

// Register registers a filter factory.
func Register(name string, factory func() Filter) {
	registry[name] = factory
}

// GetRegistered returns all registered filter factories.
func GetRegistered() map[string]func() Filter {
	return registry
}
