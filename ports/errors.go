package ports

import "errors"

var ErrCodeNotFound = errors.New("code not found")
