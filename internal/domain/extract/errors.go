package extract

import "errors"

// Sentinel kinds for event extraction errors.
var (
	ErrPageText = errors.New("fetch page text failed")
	ErrGenerate = errors.New("event generation failed")
)
