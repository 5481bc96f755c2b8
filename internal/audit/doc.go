// Package audit relays flow events to sinks without blocking the presenter.
//
// # Components
//
//   - [Sink]: event consumer (channel, JSON writer, logrus, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full or block-if-full semantics.
//   - [Event]: one flow event with timestamp, type, flow, role, phase and metadata.
//
// # Architecture boundaries
//
// This package owns buffering and sink delivery. Which events are emitted is
// decided by the presenter in the root package.
//
// # What this package must NOT do
//
//   - Record passwords or submitted codes.
//   - Import otpflow or any sibling internal package.
package audit
