package tokenizer

import "github.com/golang-jwt/jwt/v5"

// Claims are the registered claims carried by sandbox access and refresh tokens
type Claims struct {
	jwt.RegisteredClaims
}
