// Package jwt signs and verifies password reset link tokens.
//
// A link token carries the reset ticket ID and the ticket secret. The token
// proves the link was minted by this service; the ticket in Redis makes it
// single use.
package jwt
