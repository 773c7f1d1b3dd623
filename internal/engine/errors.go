package engine

// InputError is returned when a request is refused before anything is
// written. Field names the offending input as the API spells it.
type InputError struct {
	Field  string
	Reason string
}

func (e InputError) Error() string { return e.Reason }
