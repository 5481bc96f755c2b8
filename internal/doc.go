// Package internal contains helpers private to otpflow: random code and
// secret generation and their hashing.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher and Sink implementations)
//   - stores: Redis-backed challenge and reset ticket records
//
// # What this package must NOT do
//
//   - Export types that appear in the public otpflow API.
//   - Be imported by any package outside the otpflow module.
package internal
