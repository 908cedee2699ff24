// Package gateway orchestrates the friendgraph server components.
//
// # Overview
//
// The gateway package owns and wires every long-lived component: the SQLite
// store, the token issuer and its redeemed-token cache, the social service,
// the event broadcaster (plus an optional NATS publisher), Prometheus metrics
// and the HTTP server.
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	err = gw.Run(ctx) // blocks until ctx is canceled or the server fails
//
// Run performs a graceful shutdown with a five second budget. Shutdown closes
// the broadcaster first so open event streams end, then stops the HTTP
// server, drains NATS and closes the store.
//
// # HTTP API
//
// Unauthenticated (signup and login are throttled per client address):
//
//	POST /signup            {email, name, password}  -> 201 account
//	POST /login             {email, password}        -> 200 {access, refresh}
//	POST /token/refresh     {refresh}                -> 200 {access, refresh}
//	GET  /health, /health/ready, /metrics
//
// Bearer access token required:
//
//	GET  /me
//	GET  /search?query=
//	GET  /friends
//	GET  /events                                     (Server-Sent Events)
//	GET  /friend-request/pending
//	GET  /friend-request/quota
//	POST /friend-request/send    {to_account_id}     -> 201 request
//	POST /friend-request/accept  {request_id}        -> 200 request
//	POST /friend-request/reject  {request_id}        -> 200 request
//
// # Errors
//
// Errors are JSON bodies of the form {"error": "..."}. Service errors map to
// 404 (not found), 400 (self-request or bad argument), 409 (duplicate or not
// pending), 403 (not the recipient) and 429 with Retry-After (rate limited).
// Anything else is logged and returned as a generic 500.
package gateway
