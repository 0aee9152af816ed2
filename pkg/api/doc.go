// Package api serves permission decisions over HTTP for browser-side gating
// and exposes the loaded rule catalogue.
//
// # Endpoints
//
//	POST /api/v1/permissions/evaluate   {"mode":"single|any|all|each","checks":[...]}
//	GET  /api/v1/permissions/actions    ?resource=patient&resource_id=p1
//	POST /api/v1/permissions/explain    {"resource":"patient","action":"write","resource_id":"p1"}
//	GET  /api/v1/me
//	GET  /api/v1/roles                  requires role:read
//	GET  /api/v1/roles/{role}           requires role:read
//	GET  /api/v1/permissions/stats      requires role:read
//	GET  /console                       server-rendered permission overview
//
// A denial is a normal response, never an error status. Malformed requests
// get 400 with {"error": "..."}.
//
// The session user is resolved per request by the configured
// session.Resolver and every decision goes through the shared
// rbac.AccessLayer.
package api
