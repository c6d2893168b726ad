package news

import "errors"

// Sentinel kinds for article source errors.
var (
	ErrMissingAPIKey = errors.New("news api key is required")
	ErrUpstream      = errors.New("news provider returned an error")
	ErrDecode        = errors.New("decode news response failed")
)
