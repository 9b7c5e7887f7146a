package validator

import (
	"errors"

	"github.com/bytedance/sonic"
	"github.com/mykhaliev/tool-bench/model"
)

var ErrMalformedPayload = errors.New("malformed response payload")

// PayloadError describes why a success envelope could not be decoded.
type PayloadError struct {
	Reason string
	Err    error
}

func (e *PayloadError) Error() string {
	if e.Err != nil {
		return "malformed response payload: " + e.Reason + ": " + e.Err.Error()
	}
	return "malformed response payload: " + e.Reason
}

func (e *PayloadError) Unwrap() error { return e.Err }

func (e *PayloadError) Is(target error) bool { return target == ErrMalformedPayload }

// detail is the error text without the generic prefix.
func (e *PayloadError) detail() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

// DecodePayload parses the JSON document carried in env.Content[0].Text.
func DecodePayload(env *model.Envelope) (any, error) {
	if env == nil {
		return nil, &PayloadError{Reason: "response has no data"}
	}
	if len(env.Content) == 0 {
		return nil, &PayloadError{Reason: "content array is empty"}
	}

	var payload any
	if err := sonic.UnmarshalString(env.Content[0].Text, &payload); err != nil {
		return nil, &PayloadError{Reason: "content[0].text is not valid JSON", Err: err}
	}
	return payload, nil
}
