// Package site serves the embedded browser UI for building timelines.
package site

import (
	"context"
	"net/http"
)

// Prefix is where the UI is mounted.
const Prefix = "/app/"

// Register attaches the embedded UI under Prefix. /app redirects to /app/.
func Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}

	files := http.StripPrefix(Prefix, http.FileServer(FS()))
	mux.Handle(Prefix, files)
	mux.Handle("/app", http.RedirectHandler(Prefix, http.StatusMovedPermanently))
}
