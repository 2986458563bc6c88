package protocol

import "fmt"

// ErrorCode enumerates the protocol error codes named in spec.md §6.
// This is exhaustive per spec: no further codes are invented (see
// SPEC_FULL.md "Supplemented Features").
type ErrorCode uint32

const (
	ErrInvalidDimensions ErrorCode = iota
	ErrInvalidBorder
	ErrInvalidClipBox
	ErrNodeExists
)

func (c ErrorCode) String() string {
	switch c {
	case ErrInvalidDimensions:
		return "invalid_dimensions"
	case ErrInvalidBorder:
		return "invalid_border"
	case ErrInvalidClipBox:
		return "invalid_clip_box"
	case ErrNodeExists:
		return "node_exists"
	default:
		return fmt.Sprintf("error_code(%d)", uint32(c))
	}
}

// Error is a protocol-level fault attributable to one object: per §7
// ("Protocol error: mark the WM object inert and send a protocol error
// code to the offending client; compositor survives"), raising one of
// these always accompanies marking the object inert.
type Error struct {
	Object ObjectID
	Code   ErrorCode
	Msg    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("protocol: object %s: %s: %s", e.Object, e.Code, e.Msg)
}

// NewError constructs a protocol Error for the given object/code/message.
func NewError(object ObjectID, code ErrorCode, msg string) *Error {
	return &Error{Object: object, Code: code, Msg: msg}
}

// ValidateDimensions returns an invalid_dimensions Error if either
// component is negative, per I-B3.
func ValidateDimensions(object ObjectID, width, height int32) error {
	if width < 0 || height < 0 {
		return NewError(object, ErrInvalidDimensions, fmt.Sprintf("negative dimension %dx%d", width, height))
	}
	return nil
}

// ValidateBorderWidth returns an invalid_border Error if width is
// negative.
func ValidateBorderWidth(object ObjectID, width int32) error {
	if width < 0 {
		return NewError(object, ErrInvalidBorder, fmt.Sprintf("negative border width %d", width))
	}
	return nil
}

// ValidateClipBox returns an invalid_clip_box Error if either
// dimension is negative.
func ValidateClipBox(object ObjectID, width, height int32) error {
	if width < 0 || height < 0 {
		return NewError(object, ErrInvalidClipBox, fmt.Sprintf("negative clip dimension %dx%d", width, height))
	}
	return nil
}
