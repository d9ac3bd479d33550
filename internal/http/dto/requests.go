package dto

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type SetRoleRequest struct {
	Role string `json:"role"`
}

type SetLockedRequest struct {
	Locked bool `json:"locked"`
}

type UpdateDetectionStatusRequest struct {
	Status string `json:"status"`
}

type CaptureRequest struct {
	ServerURL  string    `json:"server_url"`
	Class      string    `json:"class,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
	BBox       []float64 `json:"bbox,omitempty"`
}

// ClockRequest carries a time of day as HH:MM (24-hour).
type ClockRequest struct {
	Time string `json:"time"`
}
