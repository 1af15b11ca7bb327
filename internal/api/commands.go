package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"deskpilot/internal/bitmap"
	"deskpilot/internal/desktop"
	"deskpilot/internal/hotkey"
	"deskpilot/internal/input"
	"deskpilot/internal/motion"
	"deskpilot/internal/protocol"
	"deskpilot/internal/screen"
)

// ErrBadRequest marks malformed commands.
var ErrBadRequest = errors.New("bad request")

// execute runs one command against the desktop. HTTP handlers and WebSocket
// clients share it; decode fills the command's payload.
func (s *Server) execute(ctx context.Context, t protocol.MessageType, decode func(any) error) (protocol.ResultPayload, error) {
	var res protocol.ResultPayload

	switch t {
	case protocol.TypeMove:
		var p protocol.MovePayload
		if err := decode(&p); err != nil {
			return res, fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
		target := input.Point{X: p.X, Y: p.Y}
		if p.Smooth {
			stats, err := s.desktop.SmoothMove(ctx, target)
			res.Steps = stats.Steps
			if err != nil {
				return res, err
			}
		} else if err := s.desktop.Move(target); err != nil {
			return res, err
		}
		return s.withPosition(res)

	case protocol.TypeClick, protocol.TypeToggle:
		var p protocol.ButtonPayload
		if err := decode(&p); err != nil {
			return res, fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
		b, err := input.ParseButton(p.Button)
		if err != nil {
			return res, err
		}
		if t == protocol.TypeClick {
			return res, s.desktop.Click(b)
		}
		return res, s.desktop.Toggle(p.Down, b)

	case protocol.TypeType:
		var p protocol.TextPayload
		if err := decode(&p); err != nil {
			return res, fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
		return res, s.desktop.TypeString(ctx, p.Text)

	case protocol.TypeTap:
		var p protocol.TapPayload
		if err := decode(&p); err != nil {
			return res, fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
		return res, s.desktop.Tap(p.Chord)

	case protocol.TypePosition:
		return s.withPosition(res)
	}
	return res, fmt.Errorf("%w: unknown command %q", ErrBadRequest, t)
}

func (s *Server) withPosition(res protocol.ResultPayload) (protocol.ResultPayload, error) {
	p, err := s.desktop.Position()
	if err != nil {
		return res, err
	}
	res.X, res.Y = &p.X, &p.Y
	return res, nil
}

// classify maps an operation error to an HTTP status and a result code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, motion.ErrBoundaryViolation):
		return http.StatusConflict, "boundary"
	case errors.Is(err, input.ErrUnsupportedKey):
		return http.StatusUnprocessableEntity, "unsupported_key"
	case errors.Is(err, input.ErrUnsupportedPlatform), errors.Is(err, desktop.ErrCaptureUnavailable):
		return http.StatusNotImplemented, "unsupported_platform"
	case errors.Is(err, ErrBadRequest), errors.Is(err, input.ErrInvalidButton),
		errors.Is(err, hotkey.ErrInvalidChord), errors.Is(err, screen.ErrEmptyRegion):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, bitmap.ErrAllocation):
		return http.StatusRequestEntityTooLarge, "too_large"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "canceled"
	}
	return http.StatusInternalServerError, "internal"
}
