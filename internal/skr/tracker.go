package skr

import (
	"slices"
	"sync"
)

// Tracker remembers what a suite run created so teardown releases exactly that.
type Tracker struct {
	mu         sync.Mutex
	instances  []string
	namespaces map[string][]string
	bindings   map[string][]string
}

func NewTracker() *Tracker {
	return &Tracker{
		namespaces: make(map[string][]string),
		bindings:   make(map[string][]string),
	}
}

func (t *Tracker) AddInstance(instanceID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !slices.Contains(t.instances, instanceID) {
		t.instances = append(t.instances, instanceID)
	}
}

func (t *Tracker) AddNamespace(instanceID, namespace string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !slices.Contains(t.namespaces[instanceID], namespace) {
		t.namespaces[instanceID] = append(t.namespaces[instanceID], namespace)
	}
}

func (t *Tracker) AddBinding(instanceID, bindingID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bindings[instanceID] = append(t.bindings[instanceID], bindingID)
}

// Instances returns the tracked instances in the order they were provisioned.
func (t *Tracker) Instances() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.instances)
}

func (t *Tracker) Namespaces(instanceID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.namespaces[instanceID])
}

func (t *Tracker) Bindings(instanceID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.bindings[instanceID])
}

// Forget drops everything tracked for the instance.
func (t *Tracker) Forget(instanceID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.instances = slices.DeleteFunc(t.instances, func(id string) bool { return id == instanceID })
	delete(t.namespaces, instanceID)
	delete(t.bindings, instanceID)
}
