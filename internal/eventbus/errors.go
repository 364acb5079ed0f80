package eventbus

import "errors"

// ErrBusClosed публикация в закрытую шину
var ErrBusClosed = errors.New("eventbus: closed")
