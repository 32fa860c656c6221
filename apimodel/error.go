package apimodel

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"
)

type ErrorMessage struct {
	ErrStatusCode int    `json:"status_code"`
	ErrMessage    string `json:"message"`
}

func (e *ErrorMessage) StatusCode() int {
	return e.ErrStatusCode
}

func (e *ErrorMessage) Title() string {
	return e.ErrMessage
}

func (e *ErrorMessage) Error() string {
	if e.ErrMessage != "" {
		return strconv.Itoa(e.ErrStatusCode) + ":" + e.ErrMessage
	} else {
		return strconv.Itoa(e.ErrStatusCode)
	}
}

func (v ErrorMessage) SendError(w http.ResponseWriter) {
	message := v.ErrMessage
	if message == "" {
		switch v.ErrStatusCode {
		case http.StatusNotFound:
			message = "Page not found"
		case http.StatusForbidden:
			message = "Forbidden"
		case http.StatusServiceUnavailable:
			message = "Service unavailable"
		case http.StatusBadRequest:
			message = "Bad request"
		case http.StatusConflict:
			message = "Conflict"
		default:
			message = "Internal error"
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(v.ErrStatusCode)
	v.ErrMessage = message
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		logrus.Warnf("Unable to encode error message: %v", err)
	}
}

// errors message
var TouchIgnoredErrorMessage = ErrorMessage{
	ErrStatusCode: http.StatusConflict,
	ErrMessage:    "touch ignored by debounce",
}

var LoopUnavailableErrorMessage = ErrorMessage{
	ErrStatusCode: http.StatusServiceUnavailable,
	ErrMessage:    "control loop not responding",
}
