// Package dispatch runs the plugin's request loop.
//
// The dispatcher reads launcher messages as newline-delimited JSON, decodes
// each one with the protocol parser and writes exactly one response per
// message. Requests are handled on a bounded worker pool, so responses may be
// written in a different order than the requests arrived; the launcher
// correlates them by request id.
//
// Routing:
//   - HEARTBEAT → heartbeat response
//   - BOOTSTRAP → bootstrap response, or UNSUPPORTED_VERSION on a major mismatch
//   - GET_CLUSTER_INFO → capabilities from the cluster configuration
//   - GET_JOB → invalid filters are INVALID_REQUEST; "*" answers an empty job list
//   - other job requests → JOB_NOT_FOUND (this plugin keeps no jobs)
//   - SUBMIT_JOB → REQUEST_NOT_SUPPORTED
//   - undecodable messages → INVALID_REQUEST, correlated by request id when one was read
//
// A watchdog warns when the launcher stops sending heartbeats for more than
// twice the configured interval.
package dispatch
