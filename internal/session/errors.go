package session

import "errors"

var (
	// ErrNoActiveSession is returned by Finalize when conn has no session.
	ErrNoActiveSession = errors.New("no active session")
	// ErrFinalizing is returned by Finalize while a finalize for the same
	// session is already running.
	ErrFinalizing = errors.New("session already finalizing")
	// ErrSessionClosed is returned by Finalize when the connection ended the
	// session before the record was saved.
	ErrSessionClosed = errors.New("session closed before save")
	// ErrShuttingDown is returned once Shutdown has started.
	ErrShuttingDown = errors.New("session manager shutting down")
)
