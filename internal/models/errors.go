package models

import "errors"

// ErrRoomNotFound is returned by stores when the requested room does not exist.
var ErrRoomNotFound = errors.New("room not found")
