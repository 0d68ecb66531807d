package job

import "reflect"

// Callback receives the completed job. A returned error stops the run and
// propagates along the completion path; it is never suppressed here.
type Callback func(*Job) error

// AddCallback registers cb unless an identical callback is already present.
// By default the callback is inserted at the front, so the most recently
// added runs first; appendEnd inserts at the tail instead.
//
// Identity is function code-pointer equality: distinct declared functions
// are distinct callbacks, while two closures built from the same literal
// compare equal even when they capture different variables. Registering the
// same closure literal in a loop therefore keeps only the first instance;
// callers needing per-registration identity should register distinct
// declared functions.
func (j *Job) AddCallback(cb Callback, appendEnd bool) {
	if cb == nil {
		return
	}
	for _, existing := range j.callbacks {
		if sameCallback(existing, cb) {
			return
		}
	}
	if appendEnd {
		j.callbacks = append(j.callbacks, cb)
		return
	}
	j.callbacks = append([]Callback{cb}, j.callbacks...)
}

// RemoveCallback deletes the first entry matching cb. Removing a callback
// that is not registered is a no-op. A registry of one behaves the same as a
// registry of many.
func (j *Job) RemoveCallback(cb Callback) {
	if cb == nil {
		return
	}
	for i, existing := range j.callbacks {
		if sameCallback(existing, cb) {
			j.callbacks = append(j.callbacks[:i], j.callbacks[i+1:]...)
			return
		}
	}
}

// RunCallbacks invokes every registered callback in registry order, each
// receiving the completed job. The first error stops the run and is returned
// to the caller of the completion step. An empty registry is a no-op.
func (j *Job) RunCallbacks() error {
	for _, cb := range j.callbacks {
		if err := cb(j); err != nil {
			return err
		}
	}
	return nil
}

// CallbackCount returns the number of registered callbacks.
func (j *Job) CallbackCount() int {
	return len(j.callbacks)
}

func sameCallback(a, b Callback) bool {
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}
