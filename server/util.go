package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/blindspot/blindspot/auth"
	"github.com/blindspot/blindspot/common"
	"github.com/blindspot/blindspot/util"
	"github.com/go-playground/log"
)

// Base set of HTTP headers for JSON responses
var vanillaHeaders = map[string]string{
	"X-Frame-Options": "sameorigin",
	"Cache-Control":   "max-age=0, must-revalidate",
	"Expires":         "Fri, 01 Jan 1990 00:00:00 GMT",
}

// Marshal input data to JSON an write to client
func serveJSON(
	w http.ResponseWriter,
	r *http.Request,
	etag string,
	data interface{},
) {
	buf, err := json.Marshal(data)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, r, etag, buf)
}

// Write data as JSON to the client. If etag is "" generate a strong etag by
// hashing the resulting buffer and perform a check against the "If-None-Match"
// header. If etag is set, assume this check has already been done.
func writeJSON(
	w http.ResponseWriter,
	r *http.Request,
	etag string,
	buf []byte,
) {
	if etag == "" {
		etag = util.HashBuffer(buf)
	}
	if checkClientEtag(w, r, etag) {
		return
	}

	head := w.Header()
	for key, val := range vanillaHeaders {
		head.Set(key, val)
	}
	head.Set("ETag", etag)
	head.Set("Content-Type", "application/json")

	writeData(w, r, buf)
}

// Check is any of the etags the client provides in the "If-None-Match" header
// match the generated etag. If yes, write 304 and return true.
func checkClientEtag(
	w http.ResponseWriter,
	r *http.Request,
	etag string,
) bool {
	if etag == r.Header.Get("If-None-Match") {
		w.WriteHeader(304)
		return true
	}
	return false
}

// Write a []byte to the client
func writeData(w http.ResponseWriter, r *http.Request, data []byte) {
	_, err := w.Write(data)
	if err != nil {
		logError(r, err)
	}
}

// Write an error as text with its status code. Internal errors are logged.
func httpError(w http.ResponseWriter, r *http.Request, err error) {
	code := common.StatusCode(err)
	http.Error(w, fmt.Sprintf("%d %s", code, err), code)
	if !common.CanIgnoreClientError(err) {
		logError(r, err)
	}
}

func logError(r *http.Request, err error) {
	ip, ipErr := auth.GetIP(r)
	if ipErr != nil {
		ip = r.RemoteAddr
	}
	log.Errorf("server: by %s: %s", ip, err)
}

// Text-only 404 response
func text404(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(404)
	writeData(w, r, []byte("404 Not found"))
}

// Text-only 500 response
func textErrorPage(w http.ResponseWriter, r *http.Request, err interface{}) {
	w.WriteHeader(500)
	writeData(w, r, []byte(fmt.Sprintf("500 %s", err)))
	util.LogError(r.RemoteAddr, err)
}
