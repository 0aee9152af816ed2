// Package gate turns permission decisions into presentation decisions for
// server-rendered pages and HTTP handlers.
//
// A Gate answers "how should this element be shown to this user?":
//
//	g := gate.New(access)
//	p := g.Element(user, &check, gate.Disable)
//	// p.Render, p.Disabled, p.ReadOnly, p.Message
//
// For html/template pages, FuncMap exposes the same decisions:
//
//	{{if can .User "patient:write"}}<button>Edit</button>{{end}}
//	{{with element .User "disable" "patient:delete/p-1"}}...{{end}}
//
// The Require* middleware guard handlers whose UI entry points are gated, so
// that a hidden link followed by hand renders the fallback rather than the page.
// They are a convenience for the front end and not a security boundary.
package gate
