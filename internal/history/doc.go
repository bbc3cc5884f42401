// Package history records shadow document versions into time-series
// storage.
//
// A Recorder tracks any number of devices: each tracked device's
// conflating watch stream is consumed by one goroutine that flattens the
// published document's scalar leaves into dotted-path fields and hands
// them to the sink. Because the watch stream conflates, a burst of
// document versions may collapse into fewer recorded points; history is a
// sampled trail, not an exhaustive ledger.
package history
