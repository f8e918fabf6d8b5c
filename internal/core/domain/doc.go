// Package domain defines the core domain models for Cardinal.
//
// Domain models are pure value objects without any IO dependencies
// or framework coupling. This package contains:
//
//   - Value: A stored value with its data kind
//   - Kind: The value type tags used by the snapshot format
package domain
