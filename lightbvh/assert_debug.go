//go:build lightbvh_debug

package lightbvh

// Usage errors panic in debug builds.
const debugAssertions = true
