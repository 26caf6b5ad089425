// Package response renders the JSON envelope shared by every endpoint.
package response

import (
	"encoding/json"
	"net/http"
	"strconv"

	"EasyAPI/internal/logger"
)

const (
	CodeSuccess    = 0
	SuccessMessage = "success"
)

// Envelope is {"code": ..., "message": ..., "data": ...}.
type Envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// New fills defaults: nil data becomes {}, a non-zero code without a
// message uses the code as text, code 0 means success.
func New(data any, code int, message string) Envelope {
	if code != 0 {
		if message == "" {
			message = strconv.Itoa(code)
		}
	} else if message == "" {
		message = SuccessMessage
	}
	if data == nil {
		data = map[string]any{}
	}
	return Envelope{Code: code, Message: message, Data: data}
}

func OK(data any) Envelope {
	return New(data, CodeSuccess, "")
}

// Status maps the envelope code to an HTTP status.
func (e Envelope) Status() int {
	if e.Code >= 400 && e.Code <= 599 {
		return e.Code
	}
	return http.StatusOK
}

func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Write encodes e and writes it with its status.
func Write(w http.ResponseWriter, e Envelope) {
	body, err := e.Encode()
	if err != nil {
		logger.Error("response_encode_failed", map[string]any{"error": err.Error()})
		e = New(err.Error(), http.StatusInternalServerError, "Encode Failed")
		body, _ = e.Encode()
	}
	WriteRaw(w, e.Status(), body)
}

// WriteRaw writes an already encoded envelope.
func WriteRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
