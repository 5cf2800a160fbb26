package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies coordinator failures.
type ErrorKind string

const (
	KindInvalidConfig        ErrorKind = "InvalidConfig"
	KindInvalidNickname      ErrorKind = "InvalidNickname"
	KindDuplicateNickname    ErrorKind = "DuplicateNickname"
	KindRoomNotFound         ErrorKind = "RoomNotFound"
	KindRoomClosed           ErrorKind = "RoomClosed"
	KindRoomFull             ErrorKind = "RoomFull"
	KindUnauthorized         ErrorKind = "Unauthorized"
	KindEmptyRoom            ErrorKind = "EmptyRoom"
	KindAlreadyStarted       ErrorKind = "AlreadyStarted"
	KindWrongState           ErrorKind = "WrongState"
	KindUnknownPlayer        ErrorKind = "UnknownPlayer"
	KindDuplicateAnswer      ErrorKind = "DuplicateAnswer"
	KindStaleSubmission      ErrorKind = "StaleSubmission"
	KindTransportUnavailable ErrorKind = "TransportUnavailable"
)

// Error is a typed coordinator failure. Two errors match under errors.Is
// when their kinds are equal, so callers compare against the sentinels.
type Error struct {
	Kind    ErrorKind
	Message string
}

func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrInvalidConfig        = &Error{Kind: KindInvalidConfig}
	ErrInvalidNickname      = &Error{Kind: KindInvalidNickname}
	ErrDuplicateNickname    = &Error{Kind: KindDuplicateNickname}
	ErrRoomNotFound         = &Error{Kind: KindRoomNotFound}
	ErrRoomClosed           = &Error{Kind: KindRoomClosed}
	ErrRoomFull             = &Error{Kind: KindRoomFull}
	ErrUnauthorized         = &Error{Kind: KindUnauthorized}
	ErrEmptyRoom            = &Error{Kind: KindEmptyRoom}
	ErrAlreadyStarted       = &Error{Kind: KindAlreadyStarted}
	ErrWrongState           = &Error{Kind: KindWrongState}
	ErrUnknownPlayer        = &Error{Kind: KindUnknownPlayer}
	ErrDuplicateAnswer      = &Error{Kind: KindDuplicateAnswer}
	ErrStaleSubmission      = &Error{Kind: KindStaleSubmission}
	ErrTransportUnavailable = &Error{Kind: KindTransportUnavailable}
)

// KindOf extracts the kind from err, or "" when err is not a coordinator error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
