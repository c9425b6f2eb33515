package auth

// Credentials is the body of a token request.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse carries the encoded JWT issued by the server.
type TokenResponse struct {
	JWT string `json:"jwt"`
}
