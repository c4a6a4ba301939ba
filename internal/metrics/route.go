package metrics

import (
	"net/http"

	"github.com/gorilla/mux"
)

// routeLabel returns the matched route template so that label cardinality
// stays bounded. Unmatched requests share one label.
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}
