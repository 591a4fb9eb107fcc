// Copyright (c) 2026 The scramsync authors
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package serdser contains the serialization/deserialization helpers
// which are shared by the resource packages, including the project-wide
// error envelope.
package serdser

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/scramsync/scramsync/pkg/core/cerr"
)

// ErrorResponse is the uniform error envelope of the Control API.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Bind deserializes the request into req using the b binding and
// reports whether it succeeded. On failure, the error envelope is
// written with the INVALID_INPUT code and Bind returns false, so the
// caller may simply return.
func Bind(c *gin.Context, req any, b binding.Binding) bool {
	switch err := c.ShouldBindWith(req, b).(type) {
	case *validator.InvalidValidationError:
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    string(cerr.CodeInternal),
			Message: err.Error(),
		})
	case validator.ValidationErrors:
		msgs := make([]string, 0, len(err))
		for _, ferr := range err {
			msgs = append(msgs, ferr.Error())
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    string(cerr.CodeInvalidInput),
			Message: strings.Join(msgs, "; "),
		})
	default:
		if err == nil {
			return true
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    string(cerr.CodeInvalidInput),
			Message: err.Error(),
		})
	}
	return false
}

// BindQuery deserializes the query string into req.
func BindQuery(c *gin.Context, req any) bool {
	return Bind(c, req, binding.Query)
}

// BindJSON deserializes the request body into req.
func BindJSON(c *gin.Context, req any) bool {
	return Bind(c, req, binding.JSON)
}

// SerErr writes err as the error envelope, taking the status code and
// the taxonomy code from the wrapped *cerr.Error when one is present
// and falling back to a 500 UNKNOWN envelope otherwise.
func SerErr(c *gin.Context, err error) {
	var ce *cerr.Error
	if errors.As(err, &ce) {
		c.JSON(ce.HTTPStatusCode, ErrorResponse{
			Code:    string(ce.Code),
			Message: ce.Err.Error(),
		})
		return
	}
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Code:    string(cerr.CodeUnknown),
		Message: err.Error(),
	})
}

// SerBadRequest writes an INVALID_INPUT envelope with the given
// message, for validation which happens after binding.
func SerBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Code:    string(cerr.CodeInvalidInput),
		Message: message,
	})
}
