// Package process implements subprocess spawning, shell exec, fork with
// dedicated pipe IPC, and signal handling for the runtime core.
package process

import (
	"sync"

	"github.com/hashicorp/go-multierror"
)

// Registry is the process-scoped owner of live child processes, keyed by
// id. Exit callbacks resolve children through the registry so a child torn
// down concurrently is observed as a lookup miss.
type Registry struct {
	mu       sync.Mutex
	children map[int]*Child
	nextID   int
}

func NewRegistry() *Registry {
	return &Registry{children: map[int]*Child{}}
}

func (r *Registry) add(c *Child) {
	r.mu.Lock()
	r.nextID++
	c.id = r.nextID
	r.children[c.id] = c
	r.mu.Unlock()
}

// Get resolves a child by id.
func (r *Registry) Get(id int) (*Child, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, found := r.children[id]
	return c, found
}

// Len returns the number of live children.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.children)
}

func (r *Registry) remove(id int) {
	r.mu.Lock()
	delete(r.children, id)
	r.mu.Unlock()
}

// KillAll terminates every live child, aggregating kill failures.
func (r *Registry) KillAll() error {
	r.mu.Lock()
	children := make([]*Child, 0, len(r.children))
	for _, c := range r.children {
		children = append(children, c)
	}
	r.mu.Unlock()

	var result *multierror.Error
	for _, c := range children {
		if err := c.Kill(""); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
