package canvaserrors

import "errors"

var (
	ErrUpstreamUnavailable = errors.New("rescanvas: backing log unavailable")
	ErrCommitFailed        = errors.New("rescanvas: backing log commit failed")
	ErrNothingToUndo       = errors.New("rescanvas: nothing to undo")
	ErrNothingToRedo       = errors.New("rescanvas: nothing to redo")
	ErrNotFound            = errors.New("rescanvas: not found")
	ErrInvalidArgument     = errors.New("rescanvas: invalid argument")
)
