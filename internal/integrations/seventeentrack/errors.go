package seventeentrack

import "fmt"

// TransportError means the request never reached 17TRACK application logic:
// the network call failed or the response body was not JSON.
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("request failed: %s: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// APIError is an application-level rejection: HTTP status >= 400 or a non-success "code".
type APIError struct {
	Endpoint   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// extractErrorMessage never fails: data.errors[0].message, then message, then a synthesized text.
func extractErrorMessage(result any, status int) string {
	fallback := fmt.Sprintf("API error (HTTP %d)", status)

	obj, ok := result.(map[string]any)
	if !ok {
		return fallback
	}

	if data, ok := obj["data"].(map[string]any); ok {
		if errs, ok := data["errors"].([]any); ok && len(errs) > 0 {
			if first, ok := errs[0].(map[string]any); ok {
				if msg, ok := scalarText(first["message"]); ok {
					return msg
				}
			}
		}
	}

	if msg, ok := scalarText(obj["message"]); ok {
		return msg
	}
	return fallback
}
