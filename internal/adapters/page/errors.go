package page

import "errors"

// Sentinel kinds for page text errors.
var (
	ErrBadURL    = errors.New("invalid page url")
	ErrStatus    = errors.New("unexpected page status")
	ErrNotHTML   = errors.New("page is not html")
	ErrNoContent = errors.New("page has no readable content")
)
