// Package httpapi exposes otpflow presenters as JSON resources over gin.
//
// Each POST /flows mounts one presenter; later requests address it by flow
// ID. Every response carries the rendered view and the notices raised while
// handling the request.
package httpapi
