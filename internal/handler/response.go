package handler

// Response is the envelope every endpoint answers with. Code is only
// present on errors that carry a machine-readable kind, such as
// workflow guard violations.
type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Code    string      `json:"code,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewErrorResponse(message string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
	}
}

func NewErrorResponseWithCode(code, message string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
		Code:    code,
	}
}
