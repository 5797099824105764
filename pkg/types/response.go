package types

type SuccessEnvelope struct {
	Data      any    `json:"data"`
	RequestID string `json:"requestId"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error     APIError `json:"error"`
	RequestID string   `json:"requestId"`
}

// WebhookAck is the acknowledgment body returned to webhook senders.
type WebhookAck struct {
	Received  bool   `json:"received"`
	RequestID string `json:"requestId"`
}
