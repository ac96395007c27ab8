package database

import "errors"

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrChatNotFound       = errors.New("chat not found")
	ErrNotParticipant     = errors.New("user is not a chat participant")
	ErrRequestNotFound    = errors.New("friend request not found")
	ErrDuplicateRequest   = errors.New("pending friend request already exists")
	ErrRequestNotPending  = errors.New("friend request is not pending")
	ErrFriendshipExists   = errors.New("friendship already exists")
	ErrFriendshipNotFound = errors.New("friendship not found")
)
