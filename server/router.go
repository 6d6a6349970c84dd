package server

import (
	"net/http"

	"github.com/blindspot/blindspot/config"
	"github.com/blindspot/blindspot/websockets"
	"github.com/dimfeld/httptreemux"
	"github.com/klauspost/compress/gzhttp"
)

// Request handlers bound to the service they operate on
type api struct {
	svc *websockets.Service
}

// Create the monolithic router for routing HTTP requests. Separated into own
// function for easier testability.
func createRouter(svc *websockets.Service) http.Handler {
	a := &api{svc: svc}

	r := httptreemux.New()
	r.NotFoundHandler = text404
	r.PanicHandler = textErrorPage

	// Sessions
	r.POST("/api/session", wrapHandler(a.createSession))
	r.DELETE("/api/session", wrapHandler(a.endSession))

	// JSON API
	r.GET("/json/config", wrapHandler(serveConfigs))
	r.GET("/json/boards", wrapHandler(serveBoardList))
	r.GET("/json/boards/:board", a.serveBoard)
	r.POST("/json/boards/:board", a.createPost)
	r.GET("/json/chat", wrapHandler(a.serveChat))
	r.POST("/json/chat", wrapHandler(a.createMessage))
	r.POST("/json/votes/:id", a.vote)

	// Websocket API
	r.GET("/socket", wrapHandler(svc.Handler))

	h := http.Handler(r)
	if config.Server.Server.Gzip {
		h = gzhttp.GzipHandler(h)
	}
	return h
}

// Adapter for http.HandlerFunc -> httptreemux.HandlerFunc
func wrapHandler(fn http.HandlerFunc) httptreemux.HandlerFunc {
	return func(
		res http.ResponseWriter,
		req *http.Request,
		_ map[string]string,
	) {
		fn(res, req)
	}
}
