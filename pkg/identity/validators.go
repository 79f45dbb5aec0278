package identity

// SignInPayload represents the request body for signing in.
type SignInPayload struct {
	Token string `json:"token" validate:"required"`
}
