package rbac

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/platinummonkey/gatekeeper/pkg/observability"
)

const (
	// DefaultMemoIdentities is the number of user identities kept in the memo
	DefaultMemoIdentities = 1024

	// DefaultMemoEntriesPerIdentity bounds the decisions kept for one identity.
	// A table that reaches the bound is cleared and starts over.
	DefaultMemoEntriesPerIdentity = 4096
)

// AccessLayerOption configures an AccessLayer
type AccessLayerOption func(*accessLayerConfig)

type accessLayerConfig struct {
	identities int
	perUser    int
	ttl        time.Duration
	metrics    *observability.Metrics
}

// WithMemoIdentities sets how many identities are memoized at once
func WithMemoIdentities(n int) AccessLayerOption {
	return func(c *accessLayerConfig) {
		if n > 0 {
			c.identities = n
		}
	}
}

// WithMemoEntriesPerIdentity bounds the decisions stored per identity
func WithMemoEntriesPerIdentity(n int) AccessLayerOption {
	return func(c *accessLayerConfig) {
		if n > 0 {
			c.perUser = n
		}
	}
}

// WithMemoTTL expires identity tables that have not been touched for ttl.
// Expiry is checked on lookup, so no background goroutine is started.
// Zero keeps them until evicted by capacity.
func WithMemoTTL(ttl time.Duration) AccessLayerOption {
	return func(c *accessLayerConfig) {
		c.ttl = ttl
	}
}

// WithMetrics records decisions and memo lookups
func WithMetrics(metrics *observability.Metrics) AccessLayerOption {
	return func(c *accessLayerConfig) {
		c.metrics = metrics
	}
}

// AccessLayer memoizes engine decisions so that components asking the same
// question for the same user do not re-evaluate it.
//
// Entries are keyed by value: the user's structural fingerprint plus the check
// fields, and for check lists the ordered list contents. Freshly built check
// values and slices therefore hit the memo. When a user's identity changes
// (different id, roles, organization or attributes) the new identity gets a new
// table and the old one ages out of the LRU.
type AccessLayer struct {
	engine  *Engine
	tables  *lru.Cache[uint64, *identityTable]
	perUser int
	ttl     time.Duration
	now     func() time.Time
	metrics *observability.Metrics

	hits   atomic.Int64
	misses atomic.Int64
}

// MemoStats reports memo effectiveness
type MemoStats struct {
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	Identities int     `json:"identities"`
	HitRate    float64 `json:"hit_rate"`
}

type listOp uint8

const (
	opAny listOp = iota + 1
	opAll
)

type listKey struct {
	op   listOp
	hash uint64
}

type listEntry struct {
	checks []PermissionCheck
	result bool
}

type actionsKey struct {
	resource   Resource
	resourceID string
}

type identityTable struct {
	user    *UserContext
	touched atomic.Int64

	mu      sync.Mutex
	size    int
	single  map[PermissionCheck]bool
	lists   map[listKey][]listEntry
	actions map[actionsKey][]Action
}

func newIdentityTable(user *UserContext) *identityTable {
	t := &identityTable{user: user}
	t.reset()
	return t
}

func (t *identityTable) reset() {
	t.size = 0
	t.single = make(map[PermissionCheck]bool)
	t.lists = make(map[listKey][]listEntry)
	t.actions = make(map[actionsKey][]Action)
}

// NewAccessLayer wraps an engine with a memo
func NewAccessLayer(engine *Engine, opts ...AccessLayerOption) *AccessLayer {
	cfg := accessLayerConfig{
		identities: DefaultMemoIdentities,
		perUser:    DefaultMemoEntriesPerIdentity,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	// only fails for a non-positive size, which the options rule out
	tables, _ := lru.New[uint64, *identityTable](cfg.identities)
	return &AccessLayer{
		engine:  engine,
		tables:  tables,
		perUser: cfg.perUser,
		ttl:     cfg.ttl,
		now:     time.Now,
		metrics: cfg.metrics,
	}
}

// Engine returns the wrapped engine
func (a *AccessLayer) Engine() *Engine {
	return a.engine
}

// Evaluate is the memoized HasPermission
func (a *AccessLayer) Evaluate(user *UserContext, check PermissionCheck) bool {
	if user == nil {
		return a.record("single", a.engine.HasPermission(nil, check))
	}

	t := a.table(user)
	t.mu.Lock()
	result, ok := t.single[check]
	t.mu.Unlock()
	if ok {
		a.lookup(true)
		return a.record("single", result)
	}

	a.lookup(false)
	result = a.engine.HasPermission(user, check)

	t.mu.Lock()
	a.reserve(t)
	t.single[check] = result
	t.mu.Unlock()

	return a.record("single", result)
}

// EvaluateAny is the memoized HasAnyPermission
func (a *AccessLayer) EvaluateAny(user *UserContext, checks []PermissionCheck) bool {
	return a.record("any", a.evaluateList(user, checks, opAny))
}

// EvaluateAll is the memoized HasAllPermissions
func (a *AccessLayer) EvaluateAll(user *UserContext, checks []PermissionCheck) bool {
	return a.record("all", a.evaluateList(user, checks, opAll))
}

// GetOptional evaluates a check that may be absent. No check means no
// permission is required, which always passes.
func (a *AccessLayer) GetOptional(user *UserContext, check *PermissionCheck) bool {
	if check == nil {
		return true
	}
	return a.Evaluate(user, *check)
}

// AllowedActions is the memoized GetAllowedActions. The returned slice belongs
// to the caller.
func (a *AccessLayer) AllowedActions(user *UserContext, resource Resource, resourceID string) []Action {
	if user == nil {
		return a.engine.GetAllowedActions(nil, resource, resourceID)
	}

	key := actionsKey{resource: resource, resourceID: resourceID}
	t := a.table(user)

	t.mu.Lock()
	actions, ok := t.actions[key]
	t.mu.Unlock()
	if ok {
		a.lookup(true)
		return slices.Clone(actions)
	}

	a.lookup(false)
	actions = a.engine.GetAllowedActions(user, resource, resourceID)

	t.mu.Lock()
	a.reserve(t)
	t.actions[key] = actions
	t.mu.Unlock()

	return slices.Clone(actions)
}

// HasPermission makes AccessLayer an Evaluator
func (a *AccessLayer) HasPermission(user *UserContext, check PermissionCheck) bool {
	return a.Evaluate(user, check)
}

// HasAnyPermission makes AccessLayer an Evaluator
func (a *AccessLayer) HasAnyPermission(user *UserContext, checks []PermissionCheck) bool {
	return a.EvaluateAny(user, checks)
}

// HasAllPermissions makes AccessLayer an Evaluator
func (a *AccessLayer) HasAllPermissions(user *UserContext, checks []PermissionCheck) bool {
	return a.EvaluateAll(user, checks)
}

// GetAllowedActions makes AccessLayer an Evaluator
func (a *AccessLayer) GetAllowedActions(user *UserContext, resource Resource, resourceID string) []Action {
	return a.AllowedActions(user, resource, resourceID)
}

// Explain is not memoized; it is a diagnostic path
func (a *AccessLayer) Explain(user *UserContext, check PermissionCheck) Decision {
	return a.engine.Explain(user, check)
}

// Stats returns memo statistics
func (a *AccessLayer) Stats() MemoStats {
	s := MemoStats{
		Hits:       a.hits.Load(),
		Misses:     a.misses.Load(),
		Identities: a.tables.Len(),
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}

// Purge drops every memoized decision
func (a *AccessLayer) Purge() {
	a.tables.Purge()
	if a.metrics != nil {
		a.metrics.MemoIdentities.Set(0)
	}
}

func (a *AccessLayer) evaluateList(user *UserContext, checks []PermissionCheck, op listOp) bool {
	// Empty lists and unauthenticated users are answered by the engine directly;
	// their results do not depend on anything worth caching.
	if user == nil || len(checks) == 0 {
		if op == opAny {
			return a.engine.HasAnyPermission(user, checks)
		}
		return a.engine.HasAllPermissions(user, checks)
	}

	key := listKey{op: op, hash: fingerprintChecks(checks)}
	t := a.table(user)

	t.mu.Lock()
	for _, e := range t.lists[key] {
		if slices.Equal(e.checks, checks) {
			t.mu.Unlock()
			a.lookup(true)
			return e.result
		}
	}
	t.mu.Unlock()

	a.lookup(false)
	var result bool
	if op == opAny {
		result = a.engine.HasAnyPermission(user, checks)
	} else {
		result = a.engine.HasAllPermissions(user, checks)
	}

	t.mu.Lock()
	a.reserve(t)
	t.lists[key] = append(t.lists[key], listEntry{checks: slices.Clone(checks), result: result})
	t.mu.Unlock()

	return result
}

// table returns the memo table for the user's identity, creating it when the
// identity is new or its fingerprint collides with a different identity.
func (a *AccessLayer) table(user *UserContext) *identityTable {
	fp := user.Fingerprint()
	now := a.now()
	if t, ok := a.tables.Get(fp); ok && t.user.SameIdentity(user) && !a.expired(t, now) {
		t.touched.Store(now.UnixNano())
		return t
	}
	t := newIdentityTable(user)
	t.touched.Store(now.UnixNano())
	a.tables.Add(fp, t)
	// Add may have evicted the least recently used identity.
	if a.metrics != nil {
		a.metrics.MemoIdentities.Set(float64(a.tables.Len()))
	}
	return t
}

func (a *AccessLayer) expired(t *identityTable, now time.Time) bool {
	return a.ttl > 0 && now.UnixNano()-t.touched.Load() > int64(a.ttl)
}

// reserve makes room for one entry. Caller holds t.mu.
func (a *AccessLayer) reserve(t *identityTable) {
	if t.size >= a.perUser {
		t.reset()
	}
	t.size++
}

func (a *AccessLayer) lookup(hit bool) {
	if hit {
		a.hits.Add(1)
	} else {
		a.misses.Add(1)
	}
	a.metrics.RecordMemoLookup(hit)
}

func (a *AccessLayer) record(operation string, allowed bool) bool {
	a.metrics.RecordDecision(operation, allowed)
	return allowed
}
