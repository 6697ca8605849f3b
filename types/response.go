package types

// MessageResponse is the body of simple acknowledgement responses.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is the JSON body written by the error handler. Error carries
// the human-readable reason so existing clients reading `error` keep working.
type ErrorResponse struct {
	Error   string `json:"error"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// VersionInfo describes the running API build.
type VersionInfo struct {
	Version     string   `json:"version"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Features    []string `json:"features"`
}
