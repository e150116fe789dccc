package model

// AuthState describes the current credential situation.
type AuthState struct {
	Authenticated bool   `json:"authenticated"`
	Username      string `json:"username,omitempty"`
	// Pending device-flow details, populated while a sign-in is in progress.
	VerificationURI string `json:"verificationUri,omitempty"`
	UserCode        string `json:"userCode,omitempty"`
}
