// Package otpflow implements a two-step sign-in flow: email and password
// credentials followed by a one-time passcode challenge.
//
// The package is split the same way a form screen is: a [Machine] that owns
// the legal sequence of transitions over an explicit [Form] value, and a
// [Presenter] that feeds input events into the machine, computes the visible
// [View], guards in-flight submissions, and navigates once the code is
// verified.
//
// # Architecture boundaries
//
// otpflow is the public surface. It exposes [Engine], [Builder], [Config], the
// [AuthService] boundary and the value types the presenter renders. Storage of
// challenges and reset tickets, audit dispatch and code generation live under
// internal/ and are never exported. Concrete [AuthService] implementations
// live in the authsvc package; the HTTP adapter lives in httpapi.
//
// # Phases
//
//	CollectingCredentials --credentials accepted--> AwaitingOtp --code ok--> Verified
//	        ^                                           |
//	        +---------- role or mode switch ------------+
//
// A wrong code keeps the flow in AwaitingOtp and clears the digit slots. There
// is no retry ceiling unless the service is configured with one.
package otpflow
