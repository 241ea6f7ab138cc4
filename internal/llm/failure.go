package llm

import "net/http"

// FailureCode identifies the category of a completion failure. The codes are
// part of the chat API contract and surface in error responses.
type FailureCode string

const (
	CodeInvalidJSON        FailureCode = "INVALID_JSON"
	CodeMissingMessage     FailureCode = "MISSING_MESSAGE"
	CodeEmptyMessage       FailureCode = "EMPTY_MESSAGE"
	CodeMessageTooLong     FailureCode = "MESSAGE_TOO_LONG"
	CodeInvalidAPIKey      FailureCode = "INVALID_API_KEY"
	CodePermissionDenied   FailureCode = "PERMISSION_DENIED"
	CodeQuotaExceeded      FailureCode = "QUOTA_EXCEEDED"
	CodeModelNotFound      FailureCode = "MODEL_NOT_FOUND"
	CodeContentBlocked     FailureCode = "CONTENT_BLOCKED"
	CodeTimeout            FailureCode = "TIMEOUT"
	CodeNetworkError       FailureCode = "NETWORK_ERROR"
	CodeServiceUnavailable FailureCode = "SERVICE_UNAVAILABLE"
	CodeEmptyResponse      FailureCode = "EMPTY_AI_RESPONSE"
	CodeInvalidResponse    FailureCode = "INVALID_AI_RESPONSE"
	CodeInternal           FailureCode = "INTERNAL_ERROR"
)

// Failure is the typed error every completion problem is normalized into.
// It always carries a retryability flag.
type Failure struct {
	Code      FailureCode
	Message   string
	Details   string
	Retryable bool
}

func (f *Failure) Error() string {
	return string(f.Code) + ": " + f.Message
}

func newFailure(code FailureCode, message, details string) *Failure {
	return &Failure{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryableCode(code),
	}
}

// Retryable failures are transient transport conditions: timeouts, network
// errors, rate limits, and generic upstream 5xx. Upstream-shape errors are
// deliberately not retried.
func retryableCode(code FailureCode) bool {
	switch code {
	case CodeTimeout, CodeNetworkError, CodeQuotaExceeded, CodeServiceUnavailable, CodeInternal:
		return true
	}
	return false
}

// HTTPStatus maps the failure category to the chat endpoint's status code.
func (f *Failure) HTTPStatus() int {
	switch f.Code {
	case CodeInvalidJSON, CodeMissingMessage, CodeEmptyMessage, CodeMessageTooLong, CodeContentBlocked:
		return http.StatusBadRequest
	case CodeInvalidAPIKey:
		return http.StatusUnauthorized
	case CodePermissionDenied:
		return http.StatusForbidden
	case CodeModelNotFound:
		return http.StatusNotFound
	case CodeTimeout:
		return http.StatusRequestTimeout
	case CodeQuotaExceeded:
		return http.StatusTooManyRequests
	case CodeEmptyResponse, CodeInvalidResponse:
		return http.StatusBadGateway
	case CodeNetworkError, CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// UserMessage is the short, category-appropriate explanation shown in the
// transcript when an exchange ultimately fails. Raw details are logged, not
// shown.
func (f *Failure) UserMessage() string {
	switch f.Code {
	case CodeInvalidAPIKey:
		return "The AI service is not properly configured. Please contact support."
	case CodePermissionDenied:
		return "Access to the AI service is currently restricted. Please try again later."
	case CodeQuotaExceeded:
		return "Too many requests right now. Please wait a moment and try again."
	case CodeModelNotFound:
		return "The AI model is temporarily unavailable. Please try again in a few minutes."
	case CodeContentBlocked:
		return "Your message was blocked by safety filters. Please rephrase your question about Dota 2."
	case CodeTimeout:
		return "The request took too long to process. Please try asking a shorter question."
	case CodeNetworkError:
		return "Network connection issue. Please check your internet and try again."
	case CodeServiceUnavailable:
		return "The AI service is temporarily unavailable. Please try again later."
	case CodeMissingMessage, CodeEmptyMessage:
		return "Please enter a message before sending."
	case CodeMessageTooLong:
		return "Your message is too long. Please keep it under 4000 characters."
	case CodeEmptyResponse:
		return "I couldn't generate a response. Please try rephrasing your question."
	case CodeInvalidResponse:
		return "The AI service returned an invalid response. Please try again."
	default:
		return "An unexpected error occurred. Please try again later."
	}
}
