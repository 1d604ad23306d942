package proxy

import (
	"io/fs"
	"net/http"
	"path"
	"strings"
)

const staticNotFound = "404 File not found"

// handleStatic serves everything the router does not match from the web
// root, with index.html for directories.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeStaticNotFound(w)
		return
	}
	name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
	if name == "" {
		name = "."
	}
	info, err := fs.Stat(s.static, name)
	if err == nil && info.IsDir() {
		name = path.Join(name, "index.html")
		info, err = fs.Stat(s.static, name)
	}
	if err != nil || info.IsDir() {
		writeStaticNotFound(w)
		return
	}
	http.ServeFileFS(w, r, s.static, name)
}

func writeStaticNotFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte(staticNotFound))
}
