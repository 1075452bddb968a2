package types

import "time"

// Response is the result of handling a single message or capability
// invocation. Exactly one Response is produced per handled message. When
// Success is false, Data is absent and Error/ErrorCode are populated.
type Response struct {
	Success         bool              `json:"success"`
	Data            any               `json:"data,omitempty"`
	Error           string            `json:"error,omitempty"`
	ErrorCode       ErrorCode         `json:"error_code,omitempty"`
	MessageID       string            `json:"message_id,omitempty"`
	CorrelationID   string            `json:"correlation_id,omitempty"`
	Timestamp       time.Time         `json:"timestamp"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	ExecutionTimeMS int64             `json:"execution_time_ms"`
}

// NewSuccessResponse creates a success response for the given message.
func NewSuccessResponse(msg Message, data any) *Response {
	return &Response{
		Success:       true,
		Data:          data,
		MessageID:     msg.ID,
		CorrelationID: msg.Correlation(),
		Timestamp:     time.Now(),
	}
}

// NewErrorResponse creates a failure response for the given message.
func NewErrorResponse(msg Message, code ErrorCode, errMsg string) *Response {
	return &Response{
		Success:       false,
		Error:         errMsg,
		ErrorCode:     code,
		MessageID:     msg.ID,
		CorrelationID: msg.Correlation(),
		Timestamp:     time.Now(),
	}
}

// WithExecutionTime stamps the elapsed handling duration in milliseconds.
func (r *Response) WithExecutionTime(d time.Duration) *Response {
	r.ExecutionTimeMS = d.Milliseconds()
	return r
}

// Err converts a failed response into a *Error. Returns nil for successes.
func (r *Response) Err() error {
	if r.Success {
		return nil
	}
	return NewError(r.ErrorCode, r.Error)
}
