package link

import "errors"

// ErrNoCredentials is returned by Next when every credential slot is empty.
var ErrNoCredentials = errors.New("link: no network credentials configured")
