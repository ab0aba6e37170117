// Package testing provides the conformance tests and benchmarks every
// kv.Backend implementation must pass.
//
// Example usage:
//
//	factory := func(tb testing.TB) kv.Backend {
//		return maple.New()
//	}
//
//	// Running the standard test suite
//	kvtesting.RunBackendTests(t, "Maple", factory)
//
//	// Running performance benchmarks
//	kvtesting.RunBackendBenchmarks(b, "Maple", factory)
package testing
