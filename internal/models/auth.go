package models

import "github.com/golang-jwt/jwt/v5"

// Claims are the JWT claims of an admin API token.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}
