package testsupport

import (
	"context"
	"fmt"
	"sync"

	"pepper/internal/devices"
)

// FakeSource is an in-memory devices.Source. Volumes are keyed by object;
// jobs pushed with Emit are delivered to the active Watch call.
type FakeSource struct {
	mu      sync.Mutex
	volumes map[string]devices.Volume
	order   []string
	enumErr error
	closed  bool

	jobs    chan devices.Job
	watched chan struct{}
	once    sync.Once
}

// NewFakeSource returns an empty source.
func NewFakeSource() *FakeSource {
	return &FakeSource{
		volumes: make(map[string]devices.Volume),
		jobs:    make(chan devices.Job, 16),
		watched: make(chan struct{}),
	}
}

// Name implements devices.Source.
func (f *FakeSource) Name() string { return "fake" }

// AddVolume makes a volume visible to Enumerate and Resolve.
func (f *FakeSource) AddVolume(v devices.Volume) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.volumes[v.Object]; !ok {
		f.order = append(f.order, v.Object)
	}
	f.volumes[v.Object] = v
}

// RemoveVolume hides a volume again.
func (f *FakeSource) RemoveVolume(object string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.volumes, object)
	for i, o := range f.order {
		if o == object {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
}

// FailEnumerate makes Enumerate return err.
func (f *FakeSource) FailEnumerate(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enumErr = err
}

// Enumerate implements devices.Source.
func (f *FakeSource) Enumerate(context.Context) ([]devices.Volume, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enumErr != nil {
		return nil, f.enumErr
	}
	out := make([]devices.Volume, 0, len(f.order))
	for _, object := range f.order {
		out = append(out, f.volumes[object])
	}
	return out, nil
}

// Resolve implements devices.Source.
func (f *FakeSource) Resolve(_ context.Context, object string) (devices.Volume, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.volumes[object]
	if !ok {
		return devices.Volume{}, fmt.Errorf("unknown object %s", object)
	}
	return v, nil
}

// Emit queues a job for delivery.
func (f *FakeSource) Emit(job devices.Job) {
	f.jobs <- job
}

// Watched is closed once Watch has been called.
func (f *FakeSource) Watched() <-chan struct{} {
	return f.watched
}

// Watch implements devices.Source.
func (f *FakeSource) Watch(ctx context.Context, jobs chan<- devices.Job) error {
	f.once.Do(func() { close(f.watched) })
	for {
		select {
		case <-ctx.Done():
			return nil
		case job := <-f.jobs:
			select {
			case jobs <- job:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// Close implements devices.Source.
func (f *FakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Closed reports whether Close was called.
func (f *FakeSource) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
