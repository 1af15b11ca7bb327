// Package api provides the HTTP and WebSocket server for remote desktop control.
package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"image"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"deskpilot/internal/config"
	"deskpilot/internal/desktop"
	"deskpilot/internal/input"
	"deskpilot/internal/network"
	"deskpilot/internal/protocol"
	"deskpilot/internal/screen"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const shutdownTimeout = 5 * time.Second

// Server provides HTTP API for remote control
type Server struct {
	desktop *desktop.Desktop
	listen  string
	token   string
	version string
	logger  *zap.Logger
	hub     *WSManager
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithVersion sets the version reported by /health.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// NewServer creates a server for d. Completed desktop operations are
// broadcast to every WebSocket client.
func NewServer(d *desktop.Desktop, cfg config.APIConfig, opts ...Option) *Server {
	s := &Server{
		desktop: d,
		listen:  cfg.Listen,
		token:   cfg.Token,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hub = newWSManager(s)
	d.SetOnAction(s.hub.broadcastAction)
	return s
}

// Handler returns the routed handler with auth and panic recovery applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/position", s.handlePosition)
	mux.HandleFunc("GET /api/screen", s.handleScreen)
	mux.HandleFunc("POST /api/move", s.command(protocol.TypeMove))
	mux.HandleFunc("POST /api/click", s.command(protocol.TypeClick))
	mux.HandleFunc("POST /api/toggle", s.command(protocol.TypeToggle))
	mux.HandleFunc("POST /api/type", s.command(protocol.TypeType))
	mux.HandleFunc("POST /api/tap", s.command(protocol.TypeTap))
	mux.HandleFunc("GET /api/keycode", s.handleKeyCode)
	mux.HandleFunc("GET /api/capture", s.handleCapture)
	mux.HandleFunc("GET /ws", s.hub.handleWebSocket)
	return s.authMiddleware(s.recoverMiddleware(mux))
}

// Serve listens on the configured address until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	// Explicitly use tcp4 to avoid IPv6-only binding issues on Windows
	ln, err := net.Listen("tcp4", s.listen)
	if err != nil {
		return fmt.Errorf("api listen %s: %w", s.listen, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln until ctx is cancelled, then shuts down
// gracefully and disconnects WebSocket clients.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("api server listening", zap.Stringer("addr", ln.Addr()), zap.Bool("auth", s.token != ""))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		s.hub.stop()
		return err
	})
	err := g.Wait()
	s.logger.Info("api server stopped")
	return err
}

// Close disconnects WebSocket clients. Serve does this on its own; Close is
// for callers that mount Handler themselves.
func (s *Server) Close() {
	s.hub.stop()
}

// recoverMiddleware prevents panics from crashing the whole server
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				s.logger.Error("panic in handler", zap.String("path", r.URL.Path), zap.Any("panic", v), zap.Stack("stack"))
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// authMiddleware checks the API token if configured. Browsers cannot set
// headers on WebSocket upgrades, so a token query parameter is accepted too.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("request", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.String("remote", r.RemoteAddr))

		if r.URL.Path == "/health" || s.token == "" {
			next.ServeHTTP(w, r)
			return
		}

		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if got == "" {
			got = r.URL.Query().Get("token")
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// command adapts a protocol command to a POST endpoint. An empty body is
// treated as an empty payload.
func (s *Server) command(t protocol.MessageType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		decode := func(v any) error {
			err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v)
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		res, err := s.execute(r.Context(), t, decode)
		s.writeResult(w, res, err)
	}
}

func (s *Server) writeResult(w http.ResponseWriter, res protocol.ResultPayload, err error) {
	status := http.StatusOK
	res.OK = err == nil
	if err != nil {
		status, res.Code = classify(err)
		res.Error = err.Error()
	}
	s.writeJSON(w, status, res)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("write response", zap.Error(err))
	}
}

// handleHealth handles GET /health (for monitoring and discovery)
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, network.HealthStatus{
		Status:  "ok",
		Service: network.ServiceName,
		Version: s.version,
	})
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	res, err := s.execute(r.Context(), protocol.TypePosition, func(any) error { return nil })
	s.writeResult(w, res, err)
}

func (s *Server) handleScreen(w http.ResponseWriter, r *http.Request) {
	size, err := s.desktop.ScreenSize()
	if err != nil {
		s.writeResult(w, protocol.ResultPayload{}, err)
		return
	}
	s.writeJSON(w, http.StatusOK, size)
}

// KeyCodeResponse is returned by GET /api/keycode.
type KeyCodeResponse struct {
	Char  string `json:"char"`
	Code  uint32 `json:"code"`
	Shift bool   `json:"shift"`
}

// handleKeyCode handles GET /api/keycode?char=<c>
func (s *Server) handleKeyCode(w http.ResponseWriter, r *http.Request) {
	char := r.URL.Query().Get("char")
	if utf8.RuneCountInString(char) != 1 {
		s.writeResult(w, protocol.ResultPayload{}, fmt.Errorf("%w: char must be a single character", ErrBadRequest))
		return
	}
	ch, _ := utf8.DecodeRuneInString(char)
	e, ok := s.desktop.KeyCode(ch)
	if !ok {
		s.writeResult(w, protocol.ResultPayload{}, fmt.Errorf("%w: %q", input.ErrUnsupportedKey, ch))
		return
	}
	s.writeJSON(w, http.StatusOK, KeyCodeResponse{Char: char, Code: uint32(e.Code), Shift: e.Shift})
}

// handleCapture handles GET /api/capture?x=&y=&w=&h= and returns a PNG. With
// no parameters the whole display is captured.
func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	rect, err := parseRect(r)
	if err != nil {
		s.writeResult(w, protocol.ResultPayload{}, err)
		return
	}
	bmp, err := s.desktop.Capture(rect)
	if err != nil {
		s.writeResult(w, protocol.ResultPayload{}, err)
		return
	}
	defer func() { _ = bmp.Destroy() }()

	w.Header().Set("Content-Type", "image/png")
	if err := screen.EncodePNG(w, bmp); err != nil {
		s.logger.Warn("encode capture", zap.Error(err))
	}
}

func parseRect(r *http.Request) (image.Rectangle, error) {
	q := r.URL.Query()
	keys := [4]string{"x", "y", "w", "h"}
	var (
		rect image.Rectangle
		vals [4]int
		set  int
	)
	for i, k := range keys {
		v := q.Get(k)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return rect, fmt.Errorf("%w: %s=%q", ErrBadRequest, k, v)
		}
		vals[i] = n
		set++
	}
	switch set {
	case 0:
		return rect, nil
	case 4:
		if vals[2] <= 0 || vals[3] <= 0 {
			return rect, fmt.Errorf("%w: capture size must be positive", ErrBadRequest)
		}
		return image.Rect(vals[0], vals[1], vals[0]+vals[2], vals[1]+vals[3]), nil
	}
	return rect, fmt.Errorf("%w: capture needs all of x, y, w, h or none", ErrBadRequest)
}
