// Package http implements the HTTP handlers of the license diagnostics
// service. Handlers parse the request, call a service and render the result
// with go-chi/render; failures are rendered as RFC 7807 problem details.
//
// # Routes
//
//	GET /api/license/{product}          license check with diagnostics
//	GET /api/license/{product}/payload  canonical signing payloads
//	GET /api/health                     readiness of configured products
//	GET /api/version                    build version
//	GET /healthz                        liveness
//
// A failed license check still carries the full diagnostic report in the
// body, with status 403.
package http
