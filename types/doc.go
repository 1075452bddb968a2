// Package types provides the core message model shared across the agenthub
// runtime. This package has ZERO dependencies on other agenthub packages to
// avoid circular imports. All other packages should import types from here.
package types
