package main

// exitError carries the precise process exit code spec §6 requires for
// supervisor mode (0 complete, -1 error, -3 context exhausted) past
// cobra's own Execute/os.Exit handling, which otherwise only distinguishes
// success from a flat exit(1).
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return "exit"
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func newExitError(code int, err error) *exitError {
	return &exitError{code: code, err: err}
}
