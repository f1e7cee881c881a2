package errors

import "fmt"

var (
	ErrAlreadyConnected  = fmt.Errorf("session already connected")
	ErrNotConnected      = fmt.Errorf("session is not connected")
	ErrEmptyMessage      = fmt.Errorf("message text is empty")
	ErrUnknownRoom       = fmt.Errorf("room does not exist")
	ErrMalformedRecord   = fmt.Errorf("malformed wire record")
	ErrTransportClosed   = fmt.Errorf("transport is closed")
	ErrSearchUnavailable = fmt.Errorf("no search index configured")
)
