package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims are the claims embedded in access tokens.
type JWTClaims struct {
	UserID      string      `json:"uid"`
	Email       string      `json:"email"`
	AccessLevel AccessLevel `json:"access_level"`
	jwt.RegisteredClaims
}

// LoginRequest is the credential payload for the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse carries the issued token and the authenticated user.
type LoginResponse struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}
