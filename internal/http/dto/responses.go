package dto

type AuthResponse struct {
	Token        string `json:"token"`
	User         any    `json:"user"`
	AdminSession bool   `json:"admin_session"`
}

type ErrorResponse struct {
	Error     string            `json:"error"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

type SessionResponse struct {
	Valid     bool   `json:"valid"`
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

type DiscoverResponse struct {
	ServerURL string `json:"server_url"`
}

type CollectionInfo struct {
	Name string `json:"name"`
}
