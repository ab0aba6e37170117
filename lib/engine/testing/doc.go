// Package testing provides the conformance test suite for engine.Factory
// implementations, plus the helpers it uses to drive the callback API from a
// test goroutine.
//
// Example usage:
//
//	factory := func(tb testing.TB) engine.Factory {
//		return newMyFactory(tb.TempDir())
//	}
//
//	enginetesting.RunEngineTests(t, "MyEngine", factory)
package testing
