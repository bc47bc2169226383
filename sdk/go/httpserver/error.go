// Copyright (C) The LoadGrid Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package httpserver

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the JSON body sent by Error and Errors.
type ErrorResponse struct {
	Errors []string `json:"errors"`
}

// Error responds with the given HTTP status and a JSON body listing
// one error.
func Error(w http.ResponseWriter, error string, code int) {
	Errors(w, []string{error}, code)
}

// Errors responds with the given HTTP status and a JSON body listing
// the given errors.
func Errors(w http.ResponseWriter, errors []string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(ErrorResponse{Errors: errors})
}
