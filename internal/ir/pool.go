package ir

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
)

// Pool owns every node built within one lifetime scope and guarantees
// structural sharing: equal (tag, children, payload) descriptions intern to
// exactly one node, so Signal equality stands in for deep equality.
//
// A Pool is not safe for concurrent use. Independent graphs built
// concurrently must use independent pools; Signals never cross pools.
type Pool struct {
	nodes  []node
	index  map[internKey]NodeID
	groups map[int]*groupState

	maxGroupID int
	maxNodes   int
	maxGroups  int
	closed     bool
	logger     *slog.Logger
}

// groupState tracks one recursion group.
type groupState struct {
	self     NodeID // placeholder, set by OpenGroup
	tie      NodeID // tie, set once by CloseGroup
	reserved bool   // allocated by NewGroupID, never opened by a client
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithMaxNodes bounds the number of distinct nodes (0 = unlimited).
func WithMaxNodes(n int) PoolOption {
	return func(p *Pool) { p.maxNodes = n }
}

// WithMaxGroups bounds the number of recursion groups (0 = unlimited).
func WithMaxGroups(n int) PoolOption {
	return func(p *Pool) { p.maxGroups = n }
}

// WithLogger sets the logger used for pool lifecycle events.
func WithLogger(l *slog.Logger) PoolOption {
	return func(p *Pool) { p.logger = l }
}

// NewPool opens a new pool scope.
func NewPool(opts ...PoolOption) *Pool {
	p := &Pool{
		index:      make(map[internKey]NodeID),
		groups:     make(map[int]*groupState),
		maxGroupID: -1,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Close releases the pool. Every Signal issued from it becomes invalid;
// later use is reported as a POOL_CLOSED error.
func (p *Pool) Close() {
	if p.closed {
		return
	}
	p.logger.Debug("pool closed", "nodes", len(p.nodes), "groups", len(p.groups))
	p.closed = true
	p.nodes = nil
	p.index = nil
	p.groups = nil
}

// Closed reports whether Close has been called.
func (p *Pool) Closed() bool { return p.closed }

// NodeCount returns the number of distinct nodes interned so far.
func (p *Pool) NodeCount() int { return len(p.nodes) }

// GroupCount returns the number of recursion groups known to the pool.
func (p *Pool) GroupCount() int { return len(p.groups) }

var (
	contextMu sync.Mutex
	active    *Pool
)

// CreateContext opens the process-wide ambient pool.
// Creating a second context while one is active is an error.
func CreateContext(opts ...PoolOption) (*Pool, error) {
	contextMu.Lock()
	defer contextMu.Unlock()
	if active != nil {
		return nil, &Error{Code: ErrCodeConstruction, Message: "a context is already active"}
	}
	active = NewPool(opts...)
	return active, nil
}

// DestroyContext closes the active context. p must be the active context.
func DestroyContext(p *Pool) error {
	contextMu.Lock()
	defer contextMu.Unlock()
	if active == nil {
		return &Error{Code: ErrCodeConstruction, Message: "no active context"}
	}
	if p != active {
		return &Error{Code: ErrCodeIdentityMismatch, Message: "pool is not the active context"}
	}
	active.Close()
	active = nil
	return nil
}

// ActiveContext returns the active context, or nil.
func ActiveContext() *Pool {
	contextMu.Lock()
	defer contextMu.Unlock()
	return active
}

// checkOpen returns POOL_CLOSED once the pool is closed.
func (p *Pool) checkOpen() error {
	if p == nil {
		return &Error{Code: ErrCodeConstruction, Message: "nil pool"}
	}
	if p.closed {
		return &Error{Code: ErrCodePoolClosed, Message: "pool is closed"}
	}
	return nil
}

// own verifies that s is a live Signal of this pool.
func (p *Pool) own(s Signal) error {
	if err := p.checkOpen(); err != nil {
		return err
	}
	if s.IsNil() {
		return constructionError("nil operand")
	}
	if s.pool != p {
		if s.pool.closed {
			return &Error{Code: ErrCodePoolClosed, Message: "signal from a closed pool", Node: s.id}
		}
		return &Error{Code: ErrCodeIdentityMismatch, Message: "signal belongs to another pool", Node: s.id}
	}
	if int(s.id) > len(p.nodes) {
		return &Error{Code: ErrCodeIdentityMismatch, Message: "unknown node id", Node: s.id}
	}
	return nil
}

// node returns the arena entry for s, panicking on misuse.
// Accessors cannot return errors; misuse is a programming error.
func (p *Pool) node(s Signal) *node {
	if err := p.own(s); err != nil {
		panic(err)
	}
	return &p.nodes[s.id-1]
}

// Check reports whether s can be used with this pool.
func (p *Pool) Check(s Signal) error { return p.own(s) }

func encodeKids(ids []NodeID) string {
	if len(ids) == 0 {
		return ""
	}
	b := make([]byte, 4*len(ids))
	for i, id := range ids {
		binary.LittleEndian.PutUint32(b[4*i:], uint32(id))
	}
	return string(b)
}

// intern returns the unique node for (tag, payload, kids), allocating it on
// first occurrence. Identity is decided by Go map equality on the full key,
// never by a hash alone.
func (p *Pool) intern(tag Tag, pl payload, kids ...Signal) (Signal, error) {
	if err := p.checkOpen(); err != nil {
		return Signal{}, err
	}
	ids := make([]NodeID, len(kids))
	for i, k := range kids {
		if err := p.own(k); err != nil {
			if e, ok := err.(*Error); ok && e.Code == ErrCodeConstruction {
				return Signal{}, constructionError("%s: operand %d: %s", tag, i, e.Message)
			}
			return Signal{}, err
		}
		ids[i] = k.id
	}

	key := internKey{tag: tag, payload: pl, kids: encodeKids(ids)}
	if id, ok := p.index[key]; ok {
		return Signal{pool: p, id: id}, nil
	}

	if p.maxNodes > 0 && len(p.nodes) >= p.maxNodes {
		return Signal{}, &Error{
			Code:    ErrCodeResourceExhausted,
			Message: fmt.Sprintf("node budget exceeded (%d >= %d)", len(p.nodes), p.maxNodes),
			Details: map[string]string{
				"nodes":     fmt.Sprintf("%d", len(p.nodes)),
				"max_nodes": fmt.Sprintf("%d", p.maxNodes),
			},
		}
	}

	p.nodes = append(p.nodes, node{tag: tag, payload: pl, kids: ids})
	id := NodeID(len(p.nodes))
	p.index[key] = id
	return Signal{pool: p, id: id}, nil
}

// Rebuild re-interns s with new children, keeping its tag and payload.
// Used by passes that rewrite subtrees bottom-up.
func (p *Pool) Rebuild(s Signal, kids []Signal) (Signal, error) {
	n := p.node(s)
	if len(kids) != len(n.kids) {
		return Signal{}, constructionError("%s: rebuild with %d children, want %d", n.tag, len(kids), len(n.kids))
	}
	same := true
	for i, k := range kids {
		if k.pool != p || k.id != n.kids[i] {
			same = false
			break
		}
	}
	if same {
		return s, nil
	}
	return p.intern(n.tag, n.payload, kids...)
}

// reserveGroup records a new group id against the group budget.
func (p *Pool) reserveGroup(id int) (*groupState, error) {
	if p.maxGroups > 0 && len(p.groups) >= p.maxGroups {
		return nil, &Error{
			Code:     ErrCodeResourceExhausted,
			Message:  fmt.Sprintf("recursion group budget exceeded (%d >= %d)", len(p.groups), p.maxGroups),
			Group:    id,
			HasGroup: true,
		}
	}
	g := &groupState{}
	p.groups[id] = g
	if id > p.maxGroupID {
		p.maxGroupID = id
	}
	return g, nil
}

// NewGroupID allocates a fresh group id that no client has used.
// Passes use it to re-home rewritten recursive components.
func (p *Pool) NewGroupID() (int, error) {
	if err := p.checkOpen(); err != nil {
		return 0, err
	}
	id := p.maxGroupID + 1
	g, err := p.reserveGroup(id)
	if err != nil {
		return 0, err
	}
	g.reserved = true
	return id, nil
}

// OpenGroups returns the ids of groups opened by clients, sorted.
func (p *Pool) OpenGroups() []int {
	ids := make([]int, 0, len(p.groups))
	for id, g := range p.groups {
		if !g.reserved {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// GroupTie returns the tie recorded by CloseGroup for id.
func (p *Pool) GroupTie(id int) (Signal, bool) {
	if p.closed {
		return Signal{}, false
	}
	g, ok := p.groups[id]
	if !ok || !g.tie.IsValid() {
		return Signal{}, false
	}
	return Signal{pool: p, id: g.tie}, true
}

// IsGroupClosed reports whether CloseGroup has been called for id.
func (p *Pool) IsGroupClosed(id int) bool {
	_, ok := p.GroupTie(id)
	return ok
}

// IntervalOf returns the interval annotation of s.
// The second result is false until interval analysis has annotated s.
func (p *Pool) IntervalOf(s Signal) (Interval, bool) {
	n := p.node(s)
	return n.interval, n.hasIV
}

// AnnotateInterval writes the interval of s. The field is write-once.
func (p *Pool) AnnotateInterval(s Signal, iv Interval) error {
	if err := p.own(s); err != nil {
		return err
	}
	n := &p.nodes[s.id-1]
	if n.hasIV {
		return &Error{Code: ErrCodeWriteOnce, Message: "interval already annotated", Node: s.id}
	}
	n.interval = iv
	n.hasIV = true
	return nil
}

// TieOf returns the tie bound to a resolved feedback reference.
func (p *Pool) TieOf(ref Signal) (Signal, bool) {
	n := p.node(ref)
	if !n.tie.IsValid() {
		return Signal{}, false
	}
	return Signal{pool: p, id: n.tie}, true
}

// BindTie binds a resolved feedback reference (proj) to its tie (rec).
// The binding is write-once and is not a child edge, so it never makes
// the raw graph cyclic.
func (p *Pool) BindTie(ref, tie Signal) error {
	if err := p.own(ref); err != nil {
		return err
	}
	if err := p.own(tie); err != nil {
		return err
	}
	rn := &p.nodes[ref.id-1]
	tn := &p.nodes[tie.id-1]
	if rn.tag != TagProj {
		return constructionError("bind tie: %s is not a resolved reference", rn.tag)
	}
	if tn.tag != TagRec {
		return constructionError("bind tie: %s is not a recursion tie", tn.tag)
	}
	if rn.payload.Group != tn.payload.Group {
		return constructionError("bind tie: group %d bound to tie of group %d", rn.payload.Group, tn.payload.Group)
	}
	if rn.tie.IsValid() {
		return &Error{Code: ErrCodeWriteOnce, Message: "tie already bound", Node: ref.id, Group: rn.payload.Group, HasGroup: true}
	}
	rn.tie = tie.id
	return nil
}

// UserData returns the opaque slot of s.
func (p *Pool) UserData(s Signal) any { return p.node(s).userData }

// SetUserData stores an opaque value on s. It does not take part in identity.
func (p *Pool) SetUserData(s Signal, v any) { p.node(s).userData = v }
