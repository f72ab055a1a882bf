package purge

import (
	"context"
	"sync"
)

// MemoryDeleter keeps object keys in a set. Useful for local runs and tests.
type MemoryDeleter struct {
	mu      sync.Mutex
	objects map[string]struct{}
	deletes int
	failure error
}

func NewMemoryDeleter(keys ...string) *MemoryDeleter {
	d := &MemoryDeleter{objects: make(map[string]struct{})}
	for _, k := range keys {
		d.objects[k] = struct{}{}
	}
	return d
}

func (d *MemoryDeleter) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deletes++
	if d.failure != nil {
		return d.failure
	}
	if _, ok := d.objects[key]; !ok {
		return ErrObjectNotFound
	}
	delete(d.objects, key)
	return nil
}

// FailWith makes every subsequent Delete return err; nil restores normal
// behaviour.
func (d *MemoryDeleter) FailWith(err error) {
	d.mu.Lock()
	d.failure = err
	d.mu.Unlock()
}

func (d *MemoryDeleter) Has(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.objects[key]
	return ok
}

// Deletes counts delete attempts, successful or not.
func (d *MemoryDeleter) Deletes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.deletes
}
