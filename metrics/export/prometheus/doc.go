// Package prometheus renders otpflow counters in Prometheus text exposition
// format.
//
// [NewPrometheusExporter] reads an [otpflow.Engine] on every scrape. Counter
// names are prefixed otpflow_*_total; the single histogram is
// otpflow_service_call_latency_seconds; otpflow_active_flows is a gauge.
//
// # What this package must NOT do
//
//   - Register metrics in a global registry. Callers mount the Handler.
//   - Mutate engine state.
package prometheus
