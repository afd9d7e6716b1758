package router

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/apetbrz/budgetserver/internal/wire"
)

func noopHandler(env *wire.Envelope, remaining []string) {}

func testRouter() *Router {
	return New(noopHandler, noopHandler, noopHandler, noopHandler)
}

func TestRouteStaticRoot(t *testing.T) {
	r := testRouter()
	action, remaining := r.Route("GET", []string{"/"})
	assert.Equal(t, ActionStatic, action.Kind)
	assert.Empty(t, remaining)
}

func TestRouteDynamicFileCapturesRemaining(t *testing.T) {
	r := testRouter()
	action, remaining := r.Route("GET", []string{"file", "style.css"})
	assert.Equal(t, ActionStatic, action.Kind)
	assert.Equal(t, []string{"style.css"}, remaining)
}

func TestRouteUsersNestedPost(t *testing.T) {
	r := testRouter()
	action, _ := r.Route("POST", []string{"users", "register"})
	assert.Equal(t, ActionRegister, action.Kind)

	action, _ = r.Route("POST", []string{"users", "login"})
	assert.Equal(t, ActionLogin, action.Kind)

	action, _ = r.Route("POST", []string{"users", "logout"})
	assert.Equal(t, ActionLogout, action.Kind)

	action, _ = r.Route("POST", []string{"users", "user"})
	assert.Equal(t, ActionUserCommand, action.Kind)
}

func TestRouteNotFound(t *testing.T) {
	r := testRouter()
	action, _ := r.Route("GET", []string{"does", "not", "exist"})
	assert.Equal(t, ActionNotFound, action.Kind)
}

func TestRouteMethodNotAllowed(t *testing.T) {
	r := testRouter()
	action, _ := r.Route("PUT", []string{"/"})
	assert.Equal(t, ActionMethodNotAllowed, action.Kind)
}

// TestRouteIsPure verifies the router is a total, reentrant function of
// its inputs: identical (method, segments) always yields an identical
// result, per spec.md §4.2's "pure and reentrant" contract.
func TestRouteIsPure(t *testing.T) {
	r := testRouter()
	a1, rem1 := r.Route("GET", []string{"home"})
	a2, rem2 := r.Route("GET", []string{"home"})
	assert.Equal(t, a1.Kind, a2.Kind)
	assert.Equal(t, rem1, rem2)
}
