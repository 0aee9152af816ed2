// Package cli implements the gatekeeper command-line tool for inspecting and
// validating permission rule sets.
//
// # Commands
//
// check: Evaluate checks for a user and explain each decision. Exits non-zero
// when any check is denied.
//
//	gatekeeper check --roles nurse --user n-1 \
//		--attr assigned_patients=p1,p2 \
//		patient:read patient:write/p1
//
// actions: List allowed actions per resource
//
//	gatekeeper actions --roles physician --user d-1 --resource emr
//
// roles: List roles, or the effective rules of one role
//
//	gatekeeper roles --rules ./rules.yaml --role org_admin
//
// validate: Load and compile rule set files
//
//	gatekeeper validate ./rules.yaml ./staging-rules.yaml
//
// watch: Revalidate a rule set file on every change
//
//	gatekeeper watch --rules ./rules.yaml --delay 500ms
//
// Every command that evaluates accepts --rules (default: the built-in rule
// set) and --mode (enforce or bypass).
package cli
