// Package staticserver hosts a local directory over HTTP so collect can
// audit file-based builds without deploying them anywhere.
package staticserver

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/rs/zerolog/hlog"

	log "github.com/treosh/lightci/internal/logging"
)

// Server serves one directory on a loopback address.
type Server struct {
	dir  string
	port int

	listener net.Listener
	srv      *http.Server
	stop     func() bool

	// etags caches file hashes keyed by path, size, and mtime so repeated
	// audit runs against the same build skip rehashing.
	etags *xsync.Map[string, string]
}

// New builds a server for dir. Port 0 lets the OS pick a free one.
func New(dir string, port int) *Server {
	return &Server{
		dir:   dir,
		port:  port,
		etags: xsync.NewMap[string, string](),
	}
}

// Start binds the listener and begins serving in the background. The
// server shuts down when ctx is canceled or Close is called.
func (s *Server) Start(ctx context.Context) error {
	if s.listener != nil {
		return errors.New("static server already started")
	}
	if info, err := os.Stat(s.dir); err != nil {
		return fmt.Errorf("error opening static directory: %w", err)
	} else if !info.IsDir() {
		return fmt.Errorf("static path %q is not a directory", s.dir)
	}

	addr := fmt.Sprintf("127.0.0.1:%d", s.port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("error listening on %s: %w", addr, err)
	}
	s.listener = listener

	logRequests := hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Str("user_agent", r.UserAgent()).
			Msg("static request")
	})
	s.srv = &http.Server{
		Handler:           hlog.NewHandler(log.Logger)(logRequests(http.HandlerFunc(s.serveFile))),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Err(err).Msg("static server failed")
		}
	}()
	s.stop = context.AfterFunc(ctx, func() { _ = s.Close() })

	log.Ctx(ctx).Info().Str("addr", s.Addr()).Str("dir", s.dir).Msg("static server listening")
	return nil
}

// Addr returns the bound address, for example "127.0.0.1:49321".
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// BaseURL returns the root URL of the running server.
func (s *Server) BaseURL() string {
	return "http://" + s.Addr()
}

// Close gracefully stops the server. Safe to call more than once.
func (s *Server) Close() error {
	if s.srv == nil {
		return nil
	}
	if s.stop != nil {
		s.stop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

// URLs lists the HTML pages the server exposes as absolute URLs, one per
// file under the directory. Patterns filter by url-path glob; a pattern
// without a slash matches the file name alone. No patterns means every
// page.
func (s *Server) URLs(patterns []string) ([]string, error) {
	var urls []string
	err := filepath.WalkDir(s.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isHTML(p) {
			return nil
		}
		rel, err := filepath.Rel(s.dir, p)
		if err != nil {
			return err
		}
		urlPath := "/" + filepath.ToSlash(rel)
		if matchesAny(patterns, urlPath) {
			urls = append(urls, s.BaseURL()+urlPath)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error listing pages in %s: %w", s.dir, err)
	}
	sort.Strings(urls)
	return urls, nil
}

func isHTML(p string) bool {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".html", ".htm":
		return true
	}
	return false
}

func matchesAny(patterns []string, urlPath string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, pattern := range patterns {
		target := urlPath
		if !strings.Contains(pattern, "/") {
			target = path.Base(urlPath)
		}
		if ok, err := path.Match(pattern, target); err == nil && ok {
			return true
		}
	}
	return false
}

// serveFile maps the URL path to a file under dir, falling back to
// index.html for directories, and serves it with a strong ETag.
func (s *Server) serveFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// A rooted Clean cannot escape the served directory.
	name := path.Clean("/" + r.URL.Path)
	fpath := filepath.Join(s.dir, filepath.FromSlash(name))
	info, err := os.Stat(fpath)
	if err == nil && info.IsDir() {
		fpath = filepath.Join(fpath, "index.html")
		info, err = os.Stat(fpath)
	}
	if err != nil {
		http.NotFound(w, r)
		return
	}

	if etag, err := s.etag(fpath, info); err == nil {
		w.Header().Set("ETag", etag)
	}

	f, err := os.Open(fpath)
	if err != nil {
		http.Error(w, "error opening file", http.StatusInternalServerError)
		return
	}
	defer f.Close()
	// ServeContent answers If-None-Match against the ETag set above.
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func (s *Server) etag(fpath string, info fs.FileInfo) (string, error) {
	key := fmt.Sprintf("%s|%d|%d", fpath, info.Size(), info.ModTime().UnixNano())
	if etag, ok := s.etags.Load(key); ok {
		return etag, nil
	}
	data, err := os.ReadFile(fpath)
	if err != nil {
		return "", err
	}
	etag := fmt.Sprintf("%q", fmt.Sprintf("%016x", xxhash.Sum64(data)))
	s.etags.Store(key, etag)
	return etag, nil
}
