package middleware

import "net/http"

// Middleware decorates an http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain composes middleware around h, outermost first.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// sendStatus writes a plain status response.
func sendStatus(res http.ResponseWriter, code int) {
	http.Error(res, http.StatusText(code), code)
}
