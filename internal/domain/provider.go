package domain

// ProviderConfiguration is the admin-visible state of a call provider
type ProviderConfiguration struct {
	Type        string `json:"type"`
	Active      bool   `json:"active"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	LogEnabled  bool   `json:"log_enabled"`
}

// IMInfo is a user's account on a provider's instant messaging network
type IMInfo struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}
