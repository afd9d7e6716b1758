// Package router implements the spec's immutable request routing tree:
// built once via a fluent API at startup, thereafter read-only and
// allocation-free on lookup. Grounded on
// _examples/original_source/server/src/router.rs, generalized from a
// single function-pointer leaf type to the full Action descriptor union
// in spec.md §3.
package router

import "github.com/apetbrz/budgetserver/internal/wire"

// ActionKind tags the leaf an incoming request routes to.
type ActionKind int

const (
	ActionStatic ActionKind = iota
	ActionRegister
	ActionLogin
	ActionLogout
	ActionUserCommand
	ActionUserDataRequest
	ActionTelemetryQuery
	ActionNotFound
	ActionBadRequest
	ActionMethodNotAllowed
)

// StaticHandler is invoked inline by the dispatcher for StaticHandler
// leaves. It owns env for the duration of the call and must write
// exactly one response before returning, closing env itself; remaining
// carries any path segments past the leaf (e.g. the filename under
// /file/<name>).
type StaticHandler func(env *wire.Envelope, remaining []string)

// Action is the value a route lookup yields: either a concrete descriptor
// with a static handler attached, or one of the tagged variants the
// dispatcher forwards to an actor.
type Action struct {
	Kind    ActionKind
	Handler StaticHandler
}

// node is an internal trie node: either a branch (segment -> child) or a
// leaf (an Action). Built once at startup, read-only thereafter.
type node struct {
	children map[string]*node
	leaf     *Action
}

func newBranch() *node {
	return &node{children: make(map[string]*node)}
}

func newLeaf(a Action) *node {
	return &node{leaf: &a}
}

// Builder constructs one method's route tree with the fluent API the
// original Rust RouteNode exposed: AddChild inserts a leaf and returns the
// same node (for chaining sibling inserts); AddAndSelectChild inserts a
// branch and returns the new node (for chaining into its children).
type Builder struct {
	current *node
}

// NewBuilder starts a new tree rooted at a branch node.
func NewBuilder() *Builder {
	return &Builder{current: newBranch()}
}

// AddChild inserts a leaf action under the builder's current node and
// returns the builder, unchanged, for further sibling inserts.
func (b *Builder) AddChild(segment string, action Action) *Builder {
	b.current.children[segment] = newLeaf(action)
	return b
}

// AddAndSelectChild inserts a branch node under the current node and
// returns a new Builder positioned at that child, for chaining into its
// own children.
func (b *Builder) AddAndSelectChild(segment string) *Builder {
	child := newBranch()
	b.current.children[segment] = child
	return &Builder{current: child}
}

// SelectChild returns a Builder positioned at an already-inserted branch
// child, or nil if segment isn't a child or is itself a leaf.
func (b *Builder) SelectChild(segment string) *Builder {
	child, ok := b.current.children[segment]
	if !ok || child.leaf != nil {
		return nil
	}
	return &Builder{current: child}
}

// Tree freezes the builder's node as an immutable, read-only Tree root.
func (b *Builder) Tree() *Tree {
	return &Tree{root: b.current}
}

// Tree is an immutable, shared-read-only route tree for one HTTP method.
type Tree struct {
	root *node
}

// Route looks up segments against the tree, stopping at the first leaf it
// reaches — any segments past that point are "remaining" and left for the
// leaf's StaticHandler to consume (e.g. GET /file/<name> matches the
// "file" leaf with ["<name>"] remaining). A miss at any branch level
// yields ActionNotFound. Lookup never allocates.
func (t *Tree) Route(segments []string) (Action, []string) {
	n := t.root
	for i, seg := range segments {
		if n.leaf != nil {
			return *n.leaf, segments[i:]
		}
		child, ok := n.children[seg]
		if !ok {
			return Action{Kind: ActionNotFound}, nil
		}
		n = child
	}
	if n.leaf == nil {
		return Action{Kind: ActionNotFound}, nil
	}
	return *n.leaf, nil
}

// Router dispatches on method first (GET/POST as the only two built
// trees), then into the matched tree. Any other method is
// MethodNotAllowed, matching spec.md §4.1.
type Router struct {
	get  *Tree
	post *Tree
}

// New builds the full route tree per spec.md §6's endpoint table. The GET
// tree keys the index page directly off the root-child "/" segment, per
// spec.md §4.2: "a trailing slash is treated as a distinct segment
// matching the root-child '/'".
func New(indexFile, homeFile, faviconFile StaticHandler, staticFile StaticHandler) *Router {
	get := NewBuilder()
	get.
		AddChild("/", Action{Kind: ActionStatic, Handler: indexFile}).
		AddChild("home", Action{Kind: ActionStatic, Handler: homeFile}).
		AddChild("file", Action{Kind: ActionStatic, Handler: staticFile}).
		AddChild("favicon.ico", Action{Kind: ActionStatic, Handler: faviconFile}).
		AddChild("user", Action{Kind: ActionUserDataRequest}).
		AddChild("probe_telemetry", Action{Kind: ActionTelemetryQuery})

	post := NewBuilder()
	usersBranch := post.AddAndSelectChild("users")
	usersBranch.
		AddChild("register", Action{Kind: ActionRegister}).
		AddChild("login", Action{Kind: ActionLogin}).
		AddChild("logout", Action{Kind: ActionLogout}).
		AddChild("user", Action{Kind: ActionUserCommand})

	return &Router{get: get.Tree(), post: post.Tree()}
}

// Route resolves (method, path segments) to an Action plus any path
// segments remaining for a StaticHandler to consume. Any method other
// than GET/POST yields MethodNotAllowed.
func (r *Router) Route(method string, segments []string) (Action, []string) {
	var tree *Tree
	switch method {
	case "GET":
		tree = r.get
	case "POST":
		tree = r.post
	default:
		return Action{Kind: ActionMethodNotAllowed}, nil
	}
	return tree.Route(segments)
}
