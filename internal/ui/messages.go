package ui

import "remixer/internal/progress"

type updateMsg struct {
	U progress.Update
}

type logMsg struct {
	L progress.Log
}

type resultMsg struct {
	R progress.Result
}

// doneMsg carries the return value of the step once it finishes.
type doneMsg struct {
	Err error
}
