package handlers

import (
	_ "embed"
	"net/http"
)

//go:embed static/widget.js
var widgetJS []byte

// WidgetScript serves the embeddable chat widget.
func WidgetScript(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(widgetJS)
}
