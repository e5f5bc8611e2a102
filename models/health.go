package models

type HealthGetResponse struct {
	Status           string `json:"status"`
	Timestamp        string `json:"timestamp"`
	SearchConfigured bool   `json:"searchConfigured"`
}

type TestConnectionGetResponse struct {
	Success          bool   `json:"success"`
	Message          string `json:"message,omitempty"`
	Error            string `json:"error,omitempty"`
	SearchConfigured bool   `json:"searchConfigured"`
}

// ErrorResponse is returned for any failure that happens before a stream starts.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
