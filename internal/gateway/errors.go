package gateway

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/lib/pq"
)

var (
	// ErrNotConfigured means no backend can be constructed (missing driver,
	// DSN or credentials). It lasts until the process restarts.
	ErrNotConfigured = errors.New("remote store not configured")

	// ErrUnreachable means the request could not complete.
	ErrUnreachable = errors.New("remote store unreachable")

	// ErrNotFound is returned by a Backend when the addressed row is absent.
	ErrNotFound = errors.New("row not found")
)

// RejectedError is a request the backend received and refused, such as a
// constraint violation. Retrying it verbatim will not help.
type RejectedError struct {
	Op  string
	Err error
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("remote store rejected %s: %v", e.Op, e.Err)
}

func (e *RejectedError) Unwrap() error {
	return e.Err
}

// IsOffline reports whether err should send the caller to its offline path:
// serve from cache, queue the write.
func IsOffline(err error) bool {
	return errors.Is(err, ErrUnreachable) || errors.Is(err, ErrNotConfigured)
}

// IsRejected reports whether err is a backend refusal.
func IsRejected(err error) bool {
	var rejected *RejectedError
	return errors.As(err, &rejected)
}

// Classify sorts a backend error into ErrNotConfigured, ErrUnreachable or
// *RejectedError. Already classified errors pass through.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsOffline(err) || IsRejected(err) {
		return err
	}
	if isTransport(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrUnreachable, err)
	}
	return &RejectedError{Op: op, Err: err}
}

var transportMessages = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"network is unreachable",
	"i/o timeout",
	"broken pipe",
	"server closed the connection",
}

func isTransport(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	for _, errno := range []syscall.Errno{syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.EHOSTUNREACH, syscall.ENETUNREACH, syscall.EPIPE} {
		if errors.Is(err, errno) {
			return true
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// Class 08 is connection exception; 57P0x is server shutdown or startup.
		if pqErr.Code.Class() == "08" {
			return true
		}
		switch pqErr.Code {
		case "57P01", "57P02", "57P03", "53300":
			return true
		}
		return false
	}

	// Remote libSQL drivers report transport failures as plain strings.
	msg := strings.ToLower(err.Error())
	for _, m := range transportMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
