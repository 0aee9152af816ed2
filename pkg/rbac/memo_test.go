package rbac

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/gatekeeper/pkg/observability"
)

// countingRules counts rule lookups so tests can tell a memo hit from a miss
type countingRules struct {
	*RuleModel
	calls atomic.Int64
}

func (c *countingRules) RulesFor(role string, resource Resource) []Action {
	c.calls.Add(1)
	return c.RuleModel.RulesFor(role, resource)
}

func newCountingAccess(t *testing.T, opts ...AccessLayerOption) (*AccessLayer, *countingRules) {
	t.Helper()
	rules := &countingRules{RuleModel: defaultModel(t)}
	return NewAccessLayer(NewEngine(rules), opts...), rules
}

func nurseUser() *UserContext {
	return MustUserContext("n-1", []string{"nurse"}, "org-1", map[string]any{
		"assigned_patients": []string{"p1"},
	})
}

func TestAccessLayerMemoizesSingleChecks(t *testing.T) {
	access, rules := newCountingAccess(t)

	assert.True(t, access.Evaluate(nurseUser(), CheckInstance(ResourcePatient, ActionWrite, "p1")))
	calls := rules.calls.Load()
	require.Positive(t, calls)

	// freshly constructed user and check with the same contents
	assert.True(t, access.Evaluate(nurseUser(), CheckInstance(ResourcePatient, ActionWrite, "p1")))
	assert.Equal(t, calls, rules.calls.Load())

	assert.False(t, access.Evaluate(nurseUser(), CheckInstance(ResourcePatient, ActionWrite, "p2")))
	assert.Greater(t, rules.calls.Load(), calls)

	stats := access.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
	assert.Equal(t, 1, stats.Identities)
	assert.InDelta(t, 1.0/3.0, stats.HitRate, 0.0001)
}

func TestAccessLayerMemoizesListsByValue(t *testing.T) {
	access, rules := newCountingAccess(t)
	user := nurseUser()

	first := []PermissionCheck{Check(ResourcePatient, ActionDelete), Check(ResourcePatient, ActionWrite)}
	second := []PermissionCheck{Check(ResourcePatient, ActionDelete), Check(ResourcePatient, ActionWrite)}

	assert.True(t, access.EvaluateAny(user, first))
	calls := rules.calls.Load()
	assert.True(t, access.EvaluateAny(user, second))
	assert.Equal(t, calls, rules.calls.Load())

	// same contents under a different combinator is a different question
	assert.False(t, access.EvaluateAll(user, second))
	assert.Greater(t, rules.calls.Load(), calls)

	// order is part of the key
	calls = rules.calls.Load()
	reversed := []PermissionCheck{second[1], second[0]}
	assert.True(t, access.EvaluateAny(user, reversed))
	assert.Greater(t, rules.calls.Load(), calls)

	// mutating the caller's slice afterwards does not corrupt the memo
	first[0] = Check(ResourcePatient, ActionRead)
	assert.False(t, access.EvaluateAll(user, second))
}

func TestAccessLayerIsTransparent(t *testing.T) {
	model := defaultModel(t)
	engine := NewEngine(model)
	access := NewAccessLayer(engine)

	users := []*UserContext{
		nil,
		nurseUser(),
		MustUserContext("root", []string{"admin"}, "", nil),
		MustUserContext("a-1", []string{"auditor"}, "", map[string]any{"department": "compliance"}),
		MustUserContext("nobody", nil, "", nil),
	}
	ids := []string{"", "p1", "n-1"}

	// two passes: the second is served from the memo
	for pass := 0; pass < 2; pass++ {
		for _, user := range users {
			for _, res := range model.Resources() {
				for _, id := range ids {
					assert.Equal(t, engine.GetAllowedActions(user, res, id), access.AllowedActions(user, res, id))

					var checks []PermissionCheck
					for _, act := range model.Actions() {
						check := CheckInstance(res, act, id)
						checks = append(checks, check)
						assert.Equal(t, engine.HasPermission(user, check), access.Evaluate(user, check))
					}
					assert.Equal(t, engine.HasAnyPermission(user, checks), access.EvaluateAny(user, checks))
					assert.Equal(t, engine.HasAllPermissions(user, checks), access.EvaluateAll(user, checks))
				}
			}
		}
	}
	assert.Positive(t, access.Stats().Hits)
}

func TestAccessLayerEmptyListsAndNilUser(t *testing.T) {
	access, rules := newCountingAccess(t)

	assert.False(t, access.EvaluateAny(nil, nil))
	assert.True(t, access.EvaluateAll(nil, nil))
	assert.False(t, access.EvaluateAny(nurseUser(), []PermissionCheck{}))
	assert.True(t, access.EvaluateAll(nurseUser(), []PermissionCheck{}))
	assert.False(t, access.Evaluate(nil, Check(ResourcePatient, ActionRead)))
	assert.Equal(t, []Action{}, access.AllowedActions(nil, ResourcePatient, ""))

	assert.Zero(t, rules.calls.Load())
	assert.Zero(t, access.Stats().Identities)
}

func TestAccessLayerIdentityChange(t *testing.T) {
	access, _ := newCountingAccess(t)
	check := Check(ResourcePatient, ActionCreate)

	nurse := nurseUser()
	assert.False(t, access.Evaluate(nurse, check))

	promoted := MustUserContext("n-1", []string{"nurse", "physician"}, "org-1", map[string]any{
		"assigned_patients": []string{"p1"},
	})
	assert.True(t, access.Evaluate(promoted, check))

	// attributes are part of the identity too
	reassigned := MustUserContext("n-1", []string{"nurse"}, "org-1", map[string]any{
		"assigned_patients": []string{"p2"},
	})
	assert.False(t, access.Evaluate(reassigned, CheckInstance(ResourcePatient, ActionWrite, "p1")))
	assert.True(t, access.Evaluate(nurse, CheckInstance(ResourcePatient, ActionWrite, "p1")))

	assert.Equal(t, 3, access.Stats().Identities)
}

func TestAccessLayerGetOptional(t *testing.T) {
	access, rules := newCountingAccess(t)

	assert.True(t, access.GetOptional(nil, nil))
	assert.True(t, access.GetOptional(nurseUser(), nil))
	assert.Zero(t, rules.calls.Load())

	denied := Check(ResourcePatient, ActionDelete)
	assert.False(t, access.GetOptional(nurseUser(), &denied))
	assert.False(t, access.GetOptional(nil, &denied))

	allowed := Check(ResourcePatient, ActionRead)
	assert.True(t, access.GetOptional(nurseUser(), &allowed))
}

func TestAccessLayerAllowedActionsReturnsCopy(t *testing.T) {
	access, _ := newCountingAccess(t)

	actions := access.AllowedActions(nurseUser(), ResourcePatient, "")
	require.Equal(t, []Action{ActionRead, ActionWrite}, actions)
	actions[0] = ActionDelete

	assert.Equal(t, []Action{ActionRead, ActionWrite}, access.AllowedActions(nurseUser(), ResourcePatient, ""))
	assert.Equal(t, int64(1), access.Stats().Hits)
}

func TestAccessLayerEntryBound(t *testing.T) {
	access, rules := newCountingAccess(t, WithMemoEntriesPerIdentity(2))
	user := nurseUser()

	access.Evaluate(user, Check(ResourcePatient, ActionRead))
	access.Evaluate(user, Check(ResourcePatient, ActionWrite))
	access.Evaluate(user, Check(ResourcePatient, ActionCreate)) // clears the table

	calls := rules.calls.Load()
	access.Evaluate(user, Check(ResourcePatient, ActionCreate))
	assert.Equal(t, calls, rules.calls.Load())

	access.Evaluate(user, Check(ResourcePatient, ActionRead))
	assert.Greater(t, rules.calls.Load(), calls)
}

func TestAccessLayerIdentityCapacity(t *testing.T) {
	access, _ := newCountingAccess(t, WithMemoIdentities(2))

	for _, id := range []string{"a", "b", "c"} {
		access.Evaluate(MustUserContext(id, []string{"nurse"}, "", nil), Check(ResourcePatient, ActionRead))
	}
	assert.Equal(t, 2, access.Stats().Identities)

	access.Purge()
	assert.Zero(t, access.Stats().Identities)
}

func TestAccessLayerTTL(t *testing.T) {
	access, rules := newCountingAccess(t, WithMemoTTL(time.Minute))
	now := time.Unix(1_700_000_000, 0)
	access.now = func() time.Time { return now }
	check := Check(ResourcePatient, ActionRead)

	access.Evaluate(nurseUser(), check)
	calls := rules.calls.Load()

	now = now.Add(30 * time.Second)
	access.Evaluate(nurseUser(), check)
	assert.Equal(t, calls, rules.calls.Load())

	// touched at +30s, so still fresh at +80s
	now = now.Add(50 * time.Second)
	access.Evaluate(nurseUser(), check)
	assert.Equal(t, calls, rules.calls.Load())

	now = now.Add(2 * time.Minute)
	access.Evaluate(nurseUser(), check)
	assert.Greater(t, rules.calls.Load(), calls)
	assert.Equal(t, 1, access.Stats().Identities)
}

func TestAccessLayerStartsNoGoroutines(t *testing.T) {
	before := runtime.NumGoroutine()
	for range 50 {
		newCountingAccess(t, WithMemoTTL(time.Minute))
	}
	assert.LessOrEqual(t, runtime.NumGoroutine(), before+2)
}

func TestAccessLayerMetrics(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	access, _ := newCountingAccess(t, WithMetrics(metrics))
	user := nurseUser()

	access.Evaluate(user, Check(ResourcePatient, ActionRead))
	access.Evaluate(user, Check(ResourcePatient, ActionRead))
	access.EvaluateAll(user, []PermissionCheck{Check(ResourcePatient, ActionDelete)})

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.MemoLookupsTotal.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.MemoLookupsTotal.WithLabelValues("miss")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.DecisionsTotal.WithLabelValues("single", "allow")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.DecisionsTotal.WithLabelValues("all", "deny")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.MemoIdentities))
}

func TestAccessLayerConcurrentUse(t *testing.T) {
	access, _ := newCountingAccess(t, WithMemoEntriesPerIdentity(8))
	checks := []PermissionCheck{
		Check(ResourcePatient, ActionRead),
		Check(ResourcePatient, ActionWrite),
		CheckInstance(ResourcePatient, ActionWrite, "p1"),
		CheckInstance(ResourcePatient, ActionWrite, "p2"),
		Check(ResourcePatient, ActionDelete),
	}
	want := []bool{true, true, true, false, false}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				n := i % len(checks)
				assert.Equal(t, want[n], access.Evaluate(nurseUser(), checks[n]))
				assert.True(t, access.EvaluateAny(nurseUser(), checks))
				assert.False(t, access.EvaluateAll(nurseUser(), checks))
			}
		}()
	}
	wg.Wait()
}

func TestAccessLayerIsEvaluator(t *testing.T) {
	access, _ := newCountingAccess(t)
	var ev Evaluator = access
	assert.True(t, ev.HasPermission(nurseUser(), Check(ResourcePatient, ActionRead)))
	assert.Equal(t, access.Engine().Explain(nurseUser(), Check(ResourcePatient, ActionRead)),
		access.Explain(nurseUser(), Check(ResourcePatient, ActionRead)))
}
