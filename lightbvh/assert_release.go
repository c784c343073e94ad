//go:build !lightbvh_debug

package lightbvh

// Usage errors are reported as errors and recovered from in release builds.
const debugAssertions = false
