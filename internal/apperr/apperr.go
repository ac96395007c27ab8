// Package apperr defines the error kinds returned across component boundaries.
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind groups codes by how a caller is expected to react.
type Kind int

const (
	Internal Kind = iota
	Validation
	NotFound
	Forbidden
	Conflict
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case NotFound:
		return "not_found"
	case Forbidden:
		return "forbidden"
	case Conflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Code is the stable machine-readable identifier sent to clients in the
// "code" field of an error body.
type Code string

const (
	CodeBackend            Code = "BACKEND"
	CodeInvalidID          Code = "INVALID_ID"
	CodeEmptyContent       Code = "EMPTY_CONTENT"
	CodeSelfRequest        Code = "SELF_REQUEST"
	CodeSelfChat           Code = "SELF_CHAT"
	CodeChatNotFound       Code = "CHAT_NOT_FOUND"
	CodeRequestNotFound    Code = "REQUEST_NOT_FOUND"
	CodeFriendshipNotFound Code = "FRIENDSHIP_NOT_FOUND"
	CodeUserNotFound       Code = "USER_NOT_FOUND"
	CodeNotParticipant     Code = "NOT_PARTICIPANT"
	CodeNotReceiver        Code = "NOT_RECEIVER"
	CodeNotSender          Code = "NOT_SENDER"
	CodeInvalidState       Code = "INVALID_STATE"
	CodeDuplicateRequest   Code = "DUPLICATE_REQUEST"
	CodeAlreadyFriends     Code = "ALREADY_FRIENDS"
)

// Error is a classified failure. Fields holds the ids involved.
type Error struct {
	Kind    Kind              `json:"-"`
	Code    Code              `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
	Cause   error             `json:"-"`
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%s", k, e.Fields[k])
		}
		b.WriteString(")")
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches on Code so sentinels below work with errors.Is regardless of Fields.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// With returns a copy of e carrying an extra context field.
func (e *Error) With(key, value string) *Error {
	cp := *e
	cp.Fields = make(map[string]string, len(e.Fields)+1)
	for k, v := range e.Fields {
		cp.Fields[k] = v
	}
	cp.Fields[key] = value
	return &cp
}

// Wrap returns a copy of e with cause attached.
func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.Cause = cause
	return &cp
}

func New(kind Kind, code Code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Backend wraps a persistence failure. It is never retried here.
func Backend(op string, cause error) *Error {
	return ErrBackend.Wrap(cause).With("op", op)
}

// KindOf classifies err. Errors that are not *Error are Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// CodeOf returns the code of err, or CodeBackend for unclassified errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeBackend
}

var (
	ErrBackend            = New(Internal, CodeBackend, "backend failure")
	ErrInvalidID          = New(Validation, CodeInvalidID, "invalid identifier")
	ErrEmptyContent       = New(Validation, CodeEmptyContent, "message content is empty")
	ErrSelfRequest        = New(Validation, CodeSelfRequest, "cannot send a friend request to yourself")
	ErrSelfChat           = New(Validation, CodeSelfChat, "cannot open a chat with yourself")
	ErrChatNotFound       = New(NotFound, CodeChatNotFound, "chat not found")
	ErrRequestNotFound    = New(NotFound, CodeRequestNotFound, "friend request not found")
	ErrFriendshipNotFound = New(NotFound, CodeFriendshipNotFound, "friendship not found")
	ErrUserNotFound       = New(NotFound, CodeUserNotFound, "user not found")
	ErrNotParticipant     = New(Forbidden, CodeNotParticipant, "user is not a participant of this chat")
	ErrNotReceiver        = New(Forbidden, CodeNotReceiver, "only the receiver can respond to this request")
	ErrNotSender          = New(Forbidden, CodeNotSender, "only the sender can cancel this request")
	ErrInvalidState       = New(Conflict, CodeInvalidState, "friend request is no longer pending")
	ErrDuplicateRequest   = New(Conflict, CodeDuplicateRequest, "a pending friend request already exists")
	ErrAlreadyFriends     = New(Conflict, CodeAlreadyFriends, "users are already friends")
)
