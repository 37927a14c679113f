package domain

import "errors"

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrEmptyName       = errors.New("participant name is empty")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnknownCard     = errors.New("card is not in the deck")
	ErrNoIdentity      = errors.New("no participant identity")
)
