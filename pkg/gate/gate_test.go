package gate

import (
	"bytes"
	"html/template"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatekeeper/pkg/rbac"
	"github.com/platinummonkey/gatekeeper/pkg/session"
)

func newTestGate(t *testing.T, opts ...rbac.EngineOption) *Gate {
	t.Helper()
	rs, err := rbac.DefaultRuleSet()
	require.NoError(t, err)
	model, err := rbac.NewRuleModel(rs)
	require.NoError(t, err)
	return New(rbac.NewAccessLayer(rbac.NewEngine(model, opts...)))
}

func nurse() *rbac.UserContext {
	return rbac.MustUserContext("n-1", []string{"nurse"}, "org-1", map[string]any{
		"assigned_patients": []string{"p1"},
	})
}

func TestElement(t *testing.T) {
	g := newTestGate(t)
	deleteCheck := rbac.Check(rbac.ResourcePatient, rbac.ActionDelete)
	writeCheck := rbac.CheckInstance(rbac.ResourcePatient, rbac.ActionWrite, "p1")
	msg := "You do not have permission to delete this patient."

	tests := []struct {
		name     string
		user     *rbac.UserContext
		check    *rbac.PermissionCheck
		behavior Behavior
		want     Presentation
	}{
		{"allowed", nurse(), &writeCheck, Hide, Presentation{Allowed: true, Render: true}},
		{"no check required", nil, nil, Hide, Presentation{Allowed: true, Render: true}},
		{"hide", nurse(), &deleteCheck, Hide, Presentation{}},
		{"disable", nurse(), &deleteCheck, Disable, Presentation{Render: true, Disabled: true, Message: msg}},
		{"read only", nurse(), &deleteCheck, ReadOnly, Presentation{Render: true, ReadOnly: true}},
		{"annotate", nurse(), &deleteCheck, Annotate, Presentation{Render: true, Message: msg}},
		{"unauthenticated", nil, &writeCheck, Hide, Presentation{}},
		{"unknown behavior hides", nurse(), &deleteCheck, Behavior("blink"), Presentation{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, g.Element(tt.user, tt.check, tt.behavior))
		})
	}
}

func TestElementAnyAll(t *testing.T) {
	g := New(newTestGate(t).Access(), WithMessage(func(c rbac.PermissionCheck) string { return "no " + c.String() }))
	checks := []rbac.PermissionCheck{
		rbac.Check(rbac.ResourcePatient, rbac.ActionRead),
		rbac.Check(rbac.ResourcePatient, rbac.ActionDelete),
	}

	assert.True(t, g.ElementAny(nurse(), checks, Hide).Render)
	assert.Equal(t, Presentation{Render: true, Message: "no patient:delete"}, g.ElementAll(nurse(), checks, Annotate))

	// vacuous lists
	assert.False(t, g.ElementAny(nurse(), nil, Hide).Render)
	assert.True(t, g.ElementAll(nil, nil, Hide).Allowed)
}

func TestParseBehavior(t *testing.T) {
	for in, want := range map[string]Behavior{
		"hide": Hide, "Disable": Disable, "readonly": ReadOnly, "read-only": ReadOnly, " annotate ": Annotate,
	} {
		got, err := ParseBehavior(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseBehavior("blink")
	assert.Error(t, err)
}

func TestFuncMap(t *testing.T) {
	g := newTestGate(t)
	tmpl := template.Must(template.New("page").Funcs(g.FuncMap()).Parse(
		`{{if can .User "patient:write/p1"}}edit{{end}}` +
			`|{{if can .User "patient:delete"}}delete{{end}}` +
			`|{{if canAny .User "patient:delete" "patient:read"}}any{{end}}` +
			`|{{if canAll .User "patient:delete" "patient:read"}}all{{end}}` +
			`|{{range allowedActions .User "patient"}}{{.}} {{end}}` +
			`|{{with element .User "disable" "patient:delete"}}{{if .Disabled}}disabled{{end}}{{end}}`,
	))

	type page struct{ User *rbac.UserContext }

	var buf bytes.Buffer
	require.NoError(t, tmpl.Execute(&buf, page{User: nurse()}))
	assert.Equal(t, "edit||any||read write |disabled", buf.String())

	buf.Reset()
	require.NoError(t, tmpl.Execute(&buf, page{}))
	assert.Equal(t, "|||||disabled", buf.String())

	bad := template.Must(template.New("bad").Funcs(g.FuncMap()).Parse(`{{can .User "patient"}}`))
	assert.Error(t, bad.Execute(&buf, page{User: nurse()}))
}

func TestRequireMiddleware(t *testing.T) {
	g := newTestGate(t)
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	fallback := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	read := rbac.Check(rbac.ResourcePatient, rbac.ActionRead)
	del := rbac.Check(rbac.ResourcePatient, rbac.ActionDelete)

	tests := []struct {
		name       string
		middleware func(http.Handler) http.Handler
		user       *rbac.UserContext
		want       int
	}{
		{"allowed", g.RequirePermission(read, nil), nurse(), http.StatusOK},
		{"denied", g.RequirePermission(del, nil), nurse(), http.StatusForbidden},
		{"denied with fallback", g.RequirePermission(del, fallback), nurse(), http.StatusTeapot},
		{"unauthenticated", g.RequirePermission(read, fallback), nil, http.StatusUnauthorized},
		{"any", g.RequireAny([]rbac.PermissionCheck{del, read}, nil), nurse(), http.StatusOK},
		{"all", g.RequireAll([]rbac.PermissionCheck{del, read}, nil), nurse(), http.StatusForbidden},
		{"all of nothing", g.RequireAll(nil, nil), nil, http.StatusOK},
		{
			"instance from request",
			g.RequireFunc(func(r *http.Request) rbac.PermissionCheck {
				return rbac.CheckInstance(rbac.ResourcePatient, rbac.ActionWrite, r.URL.Query().Get("id"))
			}, nil),
			nurse(), http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/patients?id=p1", nil)
			if tt.user != nil {
				r = r.WithContext(session.WithUser(r.Context(), tt.user))
			}
			w := httptest.NewRecorder()
			tt.middleware(ok).ServeHTTP(w, r)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRequireMiddlewareBypass(t *testing.T) {
	g := newTestGate(t, rbac.WithMode(rbac.ModeBypass))
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	w := httptest.NewRecorder()
	g.RequirePermission(rbac.Check(rbac.ResourcePatient, rbac.ActionDelete), nil)(ok).
		ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
