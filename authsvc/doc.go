// Package authsvc is the Redis-backed implementation of otpflow.AuthService.
//
// Accounts live in a [Directory] (in memory or PostgreSQL through sqlx).
// Issued codes and password reset tickets live in Redis and are stored only
// as hashes. Codes and reset links are handed to a [Sender], which either
// logs them or publishes them to NSQ for a mailer to deliver.
//
// Registration creates a pending account. The account becomes active when
// its first code is verified.
package authsvc
