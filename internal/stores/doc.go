// Package stores keeps short-lived challenge records in Redis: issued
// one-time codes and password reset tickets.
//
// # Design
//
// Each store persists a versioned, binary-encoded record with a TTL. Mutating
// operations (Verify, Consume) use WATCH/MULTI optimistic transactions and
// retry on contention. Records are single use: deleted on a successful match,
// and deleted when an optional attempt ceiling is reached. Hash comparisons
// are constant time.
//
// # What this package must NOT do
//
//   - Import otpflow or any sibling internal package.
//   - Store or log plaintext codes or reset secrets.
package stores
