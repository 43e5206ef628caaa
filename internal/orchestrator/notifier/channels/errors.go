package channels

import "errors"

var errNoRecipients = errors.New("no subscribers resolved for channel")
