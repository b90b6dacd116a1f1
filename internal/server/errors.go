package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"dispatch-backend/internal/domain"
	"dispatch-backend/internal/usecase"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

const serverErrorMessage = "حدث خطأ في الخادم، يرجى المحاولة لاحقاً"

var conflictCodes = map[usecase.ErrConflict]string{
	usecase.ErrDriverUnavailable: "DriverUnavailable",
	usecase.ErrDriverRequired:    "DriverRequired",
	usecase.ErrBusy:              "Busy",
	usecase.ErrPhoneTaken:        "PhoneTaken",
}

type fieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

// fail classifies err and writes the matching error response.
func (s *Server) fail(c *gin.Context, err error) {
	var (
		ve validator.ValidationErrors
		se *json.SyntaxError
		te *json.UnmarshalTypeError
		br usecase.ErrBadRequest
		nf usecase.ErrNotFound
		it *domain.InvalidTransitionError
		cf usecase.ErrConflict
		fb usecase.ErrForbidden
		ua usecase.ErrUnauthorized
	)
	switch {
	case errors.As(err, &ve):
		fields := make([]fieldError, 0, len(ve))
		for _, fe := range ve {
			fields = append(fields, fieldError{Field: fe.Namespace(), Rule: fe.Tag(), Param: fe.Param()})
		}
		s.errWith(c, http.StatusBadRequest, "ValidationFailed", "request validation failed", gin.H{"fields": fields})
	case errors.As(err, &se), errors.As(err, &te), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		s.err(c, http.StatusBadRequest, "BadRequest", "invalid json")
	case errors.Is(err, domain.ErrInvalidAmount):
		s.err(c, http.StatusBadRequest, "BadRequest", err.Error())
	case errors.As(err, &br):
		s.err(c, http.StatusBadRequest, "BadRequest", br.Error())
	case errors.As(err, &nf):
		s.err(c, http.StatusNotFound, "NotFound", nf.Error())
	case errors.Is(err, domain.ErrAlreadyAssigned):
		s.err(c, http.StatusConflict, "AlreadyAssigned", "order already taken by another driver")
	case errors.As(err, &it):
		s.errWith(c, http.StatusConflict, "InvalidTransition", it.Error(), gin.H{
			"from":    it.From,
			"to":      it.To,
			"allowed": it.From.Successors(),
		})
	case errors.As(err, &cf):
		code, ok := conflictCodes[cf]
		if !ok {
			code = "Conflict"
		}
		s.err(c, http.StatusConflict, code, cf.Error())
	case errors.As(err, &fb):
		s.err(c, http.StatusForbidden, "Forbidden", fb.Error())
	case errors.As(err, &ua):
		s.err(c, http.StatusUnauthorized, "Unauthorized", ua.Error())
	case errors.Is(err, context.DeadlineExceeded):
		s.log.Warn("request timed out", "request_id", c.GetString(ctxRequestID), "error", err)
		s.err(c, http.StatusGatewayTimeout, "Timeout", "request timed out")
	default:
		s.log.Error("request failed", "request_id", c.GetString(ctxRequestID), "path", c.Request.URL.Path, "error", err)
		s.err(c, http.StatusInternalServerError, "ServerError", serverErrorMessage)
	}
}

func (s *Server) err(c *gin.Context, status int, code, msg string) {
	s.errWith(c, status, code, msg, nil)
}

func (s *Server) errWith(c *gin.Context, status int, code, msg string, extra gin.H) {
	body := gin.H{
		"code":      code,
		"message":   msg,
		"requestId": c.GetString(ctxRequestID),
	}
	for k, v := range extra {
		body[k] = v
	}
	c.AbortWithStatusJSON(status, gin.H{"error": body})
}
