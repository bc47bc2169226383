// Copyright (C) The LoadGrid Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package httpserver

import (
	"net/http"
)

// ResponseWriter is an http.ResponseWriter that exposes the status
// and body size sent to the client.
type ResponseWriter interface {
	http.ResponseWriter
	WroteStatus() int
	WroteBodyBytes() int
}

type responseWriter struct {
	http.ResponseWriter
	wroteStatus    int // first status given to WriteHeader()
	wroteBodyBytes int // bytes successfully written
}

// WrapResponseWriter returns rw as-is if it is already a
// ResponseWriter, otherwise wraps it.
func WrapResponseWriter(orig http.ResponseWriter) ResponseWriter {
	if w, ok := orig.(ResponseWriter); ok {
		return w
	}
	return &responseWriter{ResponseWriter: orig}
}

func (w *responseWriter) WriteHeader(s int) {
	if w.wroteStatus == 0 {
		w.wroteStatus = s
	}
	// too late to change the status seen by the client, but call
	// the wrapped WriteHeader() anyway so it can log a warning
	w.ResponseWriter.WriteHeader(s)
}

func (w *responseWriter) Write(data []byte) (n int, err error) {
	if w.wroteStatus == 0 {
		w.WriteHeader(http.StatusOK)
	}
	n, err = w.ResponseWriter.Write(data)
	w.wroteBodyBytes += n
	return
}

func (w *responseWriter) WroteStatus() int {
	return w.wroteStatus
}

func (w *responseWriter) WroteBodyBytes() int {
	return w.wroteBodyBytes
}
