// Package rpcapi wires the session runtime's six RPC operations (§6) to
// HTTP: Service implements the operations against a Supervisor, an
// eventlog.Store and a subscription.Fanout; HTTPServer exposes them as chi
// routes, SSE for the event stream and plain JSON everywhere else.
package rpcapi
