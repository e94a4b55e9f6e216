package api

import (
	"encoding/json"
	"fmt"
)

// envelope is the optional {success, data} wrapper some endpoints use.
// Older endpoints return the payload directly.
type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// Unwrap decodes a response body into dst.
//
// Contract: if the body is a {success, data} envelope, dst receives the
// data field and a success=false envelope becomes an error. Any other
// body decodes directly into dst. This is the single place where the
// two response shapes are reconciled — business logic never inspects
// envelopes.
func Unwrap(raw json.RawMessage, dst any) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Success != nil {
		if !*env.Success {
			msg := env.Message
			if msg == "" {
				msg = "request failed"
			}
			return fmt.Errorf("api response: %s", msg)
		}
		if len(env.Data) > 0 {
			return json.Unmarshal(env.Data, dst)
		}
		return nil
	}
	return json.Unmarshal(raw, dst)
}
