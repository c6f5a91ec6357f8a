package retrieval

import (
	"errors"
	"fmt"
)

var (
	ErrAcquisition = errors.New("dataset acquisition failed")
	ErrRead        = errors.New("dataset read failed")
)

type Stage string

const (
	StageAcquire Stage = "acquire"
	StageRead    Stage = "read"
)

// TypeError ties a retrieval failure to the feature type and stage it
// happened in.
type TypeError struct {
	Type  string
	Stage Stage
	Err   error
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Type, e.Stage, e.Err)
}

func (e *TypeError) Unwrap() []error {
	switch e.Stage {
	case StageAcquire:
		return []error{ErrAcquisition, e.Err}
	case StageRead:
		return []error{ErrRead, e.Err}
	}
	return []error{e.Err}
}
