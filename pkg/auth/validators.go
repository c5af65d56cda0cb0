package auth

// LoginPayload is the password login request, accepted as JSON or as a form
// post.
type LoginPayload struct {
	Email    string `json:"email" form:"email" mod:"trim" validate:"required,max=255"`
	Password string `json:"password" form:"password" validate:"required,max=255"`
}

// OIDCLoginQuery selects the provider to start an OIDC flow with.
type OIDCLoginQuery struct {
	Provider string `json:"oidc_provider" query:"oidc_provider" mod:"trim"`
}

// ProviderInfo is the public slice of an OIDC provider definition.
type ProviderInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

// ProvidersResponse lists the configured OIDC providers.
type ProvidersResponse struct {
	Providers []ProviderInfo `json:"providers"`
}

// TokenResponse carries a freshly minted bearer token.
type TokenResponse struct {
	Token string `json:"token"`
}
