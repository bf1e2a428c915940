package timerapi

import (
	"context"
	"fmt"
	"net/http"
)

// SignupRequest is the payload for registering a new user.
type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the payload for authenticating.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse carries the bearer token issued on signup or login.
type AuthResponse struct {
	Token string `json:"token"`
}

// Signup registers a new user. No auth required.
func (c *Client) Signup(ctx context.Context, req SignupRequest) (AuthResponse, error) {
	var out AuthResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/signup", req, &out, false); err != nil {
		return AuthResponse{}, fmt.Errorf("signup: %w", err)
	}
	return out, nil
}

// Login authenticates and returns a bearer token. No auth required.
func (c *Client) Login(ctx context.Context, req LoginRequest) (AuthResponse, error) {
	var out AuthResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", req, &out, false); err != nil {
		return AuthResponse{}, fmt.Errorf("login: %w", err)
	}
	return out, nil
}
