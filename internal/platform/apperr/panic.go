package apperr

import "fmt"

// Panic is a recovered panic together with the goroutine stack at the point
// of recovery.
type Panic struct {
	Value any
	Stack []byte
}

func (p *Panic) Error() string {
	return fmt.Sprintf("panic: %v", p.Value)
}

// Unwrap exposes the panic value when it is itself an error, e.g. a
// runtime.Error from a nil dereference.
func (p *Panic) Unwrap() error {
	if err, ok := p.Value.(error); ok {
		return err
	}
	return nil
}

// IsFault reports whether the panic value is a runtime fault (an error value)
// rather than an arbitrary value of unknown shape.
func (p *Panic) IsFault() bool {
	_, ok := p.Value.(error)
	return ok
}
