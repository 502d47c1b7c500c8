package errors_test

import (
	"fmt"
	"io"

	"github.com/matchforge/configurator/pkg/errors"
)

// Example demonstrates basic error creation and wrapping.
func Example() {
	// Create a new error with type
	err := errors.New(errors.ErrorTypeConnection, "failed to connect to configuration store")

	// Add context details
	err = err.WithDetail("host", "localhost").
		WithDetail("port", 5432).
		WithDetail("schema", "mf")

	// Print the error
	fmt.Println(err.Error())

	// Output:
	// connection: failed to connect to configuration store
}

// ExampleWrap shows how to wrap existing errors with context.
func ExampleWrap() {
	// Simulate an underlying error
	originalErr := io.EOF

	// Wrap the error with context
	err := errors.Wrap(originalErr, errors.ErrorTypeData, "failed to read configuration document").
		WithDetail("config_id", 1589383763)

	// Check the error type
	if errors.IsType(err, errors.ErrorTypeData) {
		fmt.Println("This is a data error")
	}

	// Output:
	// This is a data error
}

// ExampleIsRetryable shows how to check if an error is retryable.
func ExampleIsRetryable() {
	tempErr := errors.New(errors.ErrorTypeTimeout, "engine did not respond in time")
	fatalErr := errors.New(errors.ErrorTypeValidation, "datasource code must not be empty")

	if errors.IsRetryable(tempErr) {
		fmt.Println("Timeout error is retryable")
	}

	if !errors.IsRetryable(fatalErr) {
		fmt.Println("Validation error is not retryable")
	}

	// Output:
	// Timeout error is retryable
	// Validation error is not retryable
}

// ExampleIsType demonstrates checking error types through wrapped chains.
func ExampleIsType() {
	connErr := errors.New(errors.ErrorTypeConnection, "connection refused")
	wrappedErr := errors.Wrap(connErr, errors.ErrorTypeInternal, "snapshot store unavailable")

	fmt.Printf("Is connection error: %v\n", errors.IsType(connErr, errors.ErrorTypeConnection))

	// IsType matches the outermost structured error in the chain
	fmt.Printf("Wrapped error is internal type: %v\n", errors.IsType(wrappedErr, errors.ErrorTypeInternal))

	// Output:
	// Is connection error: true
	// Wrapped error is internal type: true
}

// Example_errorChain shows how error context accumulates across layers.
func Example_errorChain() {
	err := openRegistry()
	if err != nil {
		err = errors.Wrap(err, errors.ErrorTypeData, "failed to load active configuration").
			WithDetail("operation", "GetDefaultConfigID")

		fmt.Println("Full error chain:", err)
	}

	// Output:
	// Full error chain: data: failed to load active configuration: connection: connection timeout
}

// openRegistry simulates a registry connection error
func openRegistry() error {
	return errors.New(errors.ErrorTypeConnection, "connection timeout").
		WithDetail("host", "db.example.com").
		WithDetail("port", 5432)
}
