// Package metrics exposes Prometheus counters and histograms for friendgraph.
//
// Collectors live on a private registry created by New:
//
//	friendgraph_friend_requests_total{op,outcome}
//	friendgraph_http_requests_total{method,route,status}
//	friendgraph_http_request_duration_seconds{method,route}
//	friendgraph_http_inflight_requests
//
// plus the standard Go runtime and process collectors.
package metrics
