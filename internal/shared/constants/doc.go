// Package constants centralizes option names and defaults shared across the agent.
//
// Option and override names, API timeouts, cache TTLs and nonce lifetimes
// live here so cmd/ and internal/ agree on them without import cycles.
package constants
