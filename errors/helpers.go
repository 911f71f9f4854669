package errors

// WrapOpComponent wraps err with the operation and component it surfaced in.
// If err is nil, returns nil.
func WrapOpComponent(err error, op Operation, component string) error {
	if err == nil {
		return nil
	}
	return NewWithComponent(op, component, err)
}

// WrapStorage wraps a storage failure, keeping it retryable. If err is nil,
// returns nil.
func WrapStorage(err error, op Operation, component string) error {
	if err == nil {
		return nil
	}
	e := NewStorageError(op, err)
	e.Component = component
	return e
}
