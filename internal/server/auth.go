package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// RoleOperator es el rol exigido para disparar broadcasts.
const RoleOperator = "operator"

// Claims del token de operador.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// NewOperatorToken firma un token HS256 con rol operator.
func NewOperatorToken(secret, subject string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("server: jwt secret vacío")
	}
	now := time.Now()
	claims := Claims{
		Role: RoleOperator,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    "agriqnet",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

var (
	errMissingToken = errors.New("missing bearer token")
	errInvalidToken = errors.New("invalid token")
	errNotOperator  = errors.New("operator role required")
)

// operatorSubject valida el header Authorization y devuelve el sujeto del
// token de operador.
func operatorSubject(secret, authHeader string) (string, error) {
	tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok || tokenString == "" {
		return "", errMissingToken
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return "", errInvalidToken
	}
	if claims.Role != RoleOperator {
		return "", errNotOperator
	}
	return claims.Subject, nil
}

// operatorAuth exige un Bearer token de operador. Sin secreto configurado no
// protege nada (modo demo).
func operatorAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}
		subject, err := operatorSubject(secret, c.GetHeader("Authorization"))
		switch {
		case errors.Is(err, errNotOperator):
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": err.Error()})
			return
		case err != nil:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set("operator", subject)
		c.Next()
	}
}

// isOperator indica si la petición trae un token de operador válido, sin
// rechazarla cuando no lo trae. Sin secreto todo llamante es operador.
func isOperator(c *gin.Context, secret string) bool {
	if secret == "" {
		return true
	}
	_, err := operatorSubject(secret, c.GetHeader("Authorization"))
	return err == nil
}
