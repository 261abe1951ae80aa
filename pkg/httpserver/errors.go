package httpserver

import "errors"

var (
	ErrStart          = errors.New("httpserver: start failed")
	ErrShutdown       = errors.New("httpserver: graceful shutdown failed")
	ErrAlreadyRunning = errors.New("httpserver: already running")
)
