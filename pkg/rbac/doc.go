// Package rbac decides whether the current user may perform an action on a
// resource in the administration front end.
//
// # Overview
//
// The package has three layers:
//
//  1. Rule Model: a static role → capability mapping compiled from YAML
//  2. Engine: pure decision functions over the rule model
//  3. AccessLayer: a memo in front of the engine for repeated UI checks
//
// Interface components ask questions such as "may this user edit patient 42?"
// and use the answer to show, hide or disable controls. Decisions are
// advisory; the backend enforces authorization independently.
//
// # Resources and Actions
//
// Resources are the protected concepts of the front end:
//
//	ResourcePatient            - Patient record
//	ResourceEMR                - Electronic medical record
//	ResourceForm               - Intake and clinical forms
//	ResourceRole               - Role management
//	ResourceGroup              - Group management
//	ResourcePermissionResource - Permission resource catalogue
//	ResourceOrganization       - Organization management
//	ResourceUser               - User management
//
// Actions are read, write, create, delete, assign and export. The rule set
// declares their canonical order, which is the order GetAllowedActions uses.
//
// # Rule Sets
//
// A rule set is a YAML document:
//
//	version: 1
//	actions: [read, write, create, delete, assign, export]
//	resources: [patient, emr, form]
//	roles:
//	  clinician:
//	    grants:
//	      - resource: patient
//	        actions: [read]
//	      - resource: emr
//	        actions: [read]
//	        when:
//	          - type: attribute_contains
//	            attribute: assigned_patients
//	  nurse:
//	    inherits: [clinician]
//	    grants:
//	      - resource: patient
//	        actions: [write]
//
// "*" as a resource or action expands to everything declared. Inherited grants
// are flattened into each role at compile time and inheritance cycles are
// rejected. A default rule set is embedded in the binary:
//
//	rs, err := rbac.DefaultRuleSet()
//	model, err := rbac.NewRuleModel(rs)
//
// # Instance Checks
//
// A PermissionCheck with a ResourceID asks about one instance. The role must
// grant the action at type level, and the predicates of at least one granting
// rule must all hold:
//
//	owner               - the instance id is the user's id
//	attribute_contains  - a user attribute (string or list) contains the id
//	attribute_equals    - a user attribute equals a configured value
//	has_organization    - the user belongs to an (optionally fixed) organization;
//	                      the instance id is not consulted
//
// A granting rule without predicates allows every instance.
//
// # Evaluating
//
//	engine := rbac.NewEngine(model)
//	user, _ := rbac.NewUserContext("u-1", []string{"nurse"}, "org-1", map[string]any{
//		"assigned_patients": []string{"p-1"},
//	})
//
//	engine.HasPermission(user, rbac.Check(rbac.ResourcePatient, rbac.ActionWrite))
//	engine.HasAnyPermission(user, checks)  // false for an empty list
//	engine.HasAllPermissions(user, checks) // true for an empty list
//	engine.GetAllowedActions(user, rbac.ResourcePatient, "p-1")
//
// A nil user is unauthenticated and is denied every check. The empty-list
// rules of HasAnyPermission and HasAllPermissions still apply to it.
//
// ModeBypass allows every check and is selected explicitly:
//
//	engine := rbac.NewEngine(model, rbac.WithMode(rbac.ModeBypass))
//
// # Memoization
//
// AccessLayer caches decisions per user identity. Keys are structural, so
// freshly constructed checks and slices with equal contents share entries:
//
//	access := rbac.NewAccessLayer(engine, rbac.WithMetrics(metrics))
//	access.Evaluate(user, rbac.CheckInstance(rbac.ResourceEMR, rbac.ActionRead, "p-1"))
//	access.GetOptional(user, nil) // true: nothing is required
//
// A role or attribute change produces a different identity and therefore a
// fresh set of decisions.
//
// # Thread Safety
//
// RuleModel and Engine are immutable after construction. AccessLayer is safe
// for concurrent use.
package rbac
