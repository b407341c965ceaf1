// Package errors provides the classified error primitives used across tachyon.
//
// Every failure the orchestrator can surface falls into one of a few categories:
// configuration problems, build-engine failures, host-process supervision failures
// and internal faults. ClassifiedError carries that category together with a
// severity and structured context so the CLI can log it once and pick an exit code.
//
// Example usage:
//
//	err := errors.WrapError(cause, errors.CategoryBuild, "preload build failed").
//		WithContext("target", "preload").
//		WithContext("config_file", path).
//		Build()
package errors
