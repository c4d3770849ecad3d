package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Dhoini/glucose-gateway/pkg/logger"
	"github.com/Dhoini/glucose-gateway/pkg/res"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// ContextKey тип для ключей контекста во избежание коллизий.
type ContextKey string

const (
	// ContextUserIDKey ключ ID пользователя (claim sub)
	ContextUserIDKey ContextKey = "userID"
	// ContextUserEmailKey ключ email пользователя (claim email)
	ContextUserEmailKey ContextKey = "userEmail"

	authHeaderPrefix = "Bearer "
	defaultLeeway    = 30 * time.Second
)

// TokenValidator проверяет подпись и срок действия токена.
type TokenValidator interface {
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims - claims токена провайдера авторизации
type TokenClaims struct {
	UserEmail string `json:"email"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// JWTMiddleware аутентифицирует запросы по Bearer токену
type JWTMiddleware struct {
	log       *logger.Logger
	validator TokenValidator
}

// NewJWTMiddleware создает middleware с переданным валидатором
func NewJWTMiddleware(validator TokenValidator, log *logger.Logger) *JWTMiddleware {
	return &JWTMiddleware{
		log:       log.Named("auth"),
		validator: validator,
	}
}

// RequireAuth пропускает только запросы с действительным токеном.
// В контекст gin кладутся userID и userEmail.
func (m *JWTMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			m.handleAuthError(c, "Missing authorization token")
			return
		}
		if !strings.HasPrefix(authHeader, authHeaderPrefix) {
			m.handleAuthError(c, "Authorization header must use Bearer scheme")
			return
		}

		tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, authHeaderPrefix))
		claims, err := m.validator.Validate(tokenString)
		if err != nil {
			m.handleAuthError(c, fmt.Sprintf("Token validation failed: %v", err))
			return
		}

		if claims.Subject == "" {
			m.handleAuthError(c, "User ID (sub) missing in token")
			return
		}

		c.Set(string(ContextUserIDKey), claims.Subject)
		c.Set(string(ContextUserEmailKey), claims.UserEmail)
		m.log.Debugw("User authenticated", "userID", claims.Subject)
		c.Next()
	}
}

func (m *JWTMiddleware) handleAuthError(c *gin.Context, message string) {
	m.log.Warnw("HTTP authentication failed", "path", c.Request.URL.Path, "error", message)
	res.Fail(c, http.StatusUnauthorized, res.Envelope{Error: message})
}

// UserID возвращает ID аутентифицированного пользователя
func UserID(c *gin.Context) (string, bool) {
	userID := c.GetString(string(ContextUserIDKey))
	return userID, userID != ""
}

// UserEmail возвращает email из токена (может быть пустым)
func UserEmail(c *gin.Context) string {
	return c.GetString(string(ContextUserEmailKey))
}

// HMACTokenValidator проверяет токены с общим секретом (HS256/384/512).
type HMACTokenValidator struct {
	secret []byte
	parser *jwt.Parser
}

// NewHMACTokenValidator создает валидатор по общему секрету
func NewHMACTokenValidator(secret string, audience string) *HMACTokenValidator {
	opts := []jwt.ParserOption{
		jwt.WithLeeway(defaultLeeway),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name, jwt.SigningMethodHS384.Name, jwt.SigningMethodHS512.Name}),
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	return &HMACTokenValidator{
		secret: []byte(secret),
		parser: jwt.NewParser(opts...),
	}
}

// Validate реализует TokenValidator
func (v *HMACTokenValidator) Validate(tokenString string) (*TokenClaims, error) {
	token, err := v.parser.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	return claimsFrom(token, err)
}

// JWKSTokenValidator проверяет асимметричные токены по ключам JWKS провайдера.
type JWKSTokenValidator struct {
	keyfunc keyfunc.Keyfunc
	parser  *jwt.Parser
}

// NewJWKSTokenValidator загружает JWKS и настраивает проверку issuer/audience, если они заданы
func NewJWKSTokenValidator(jwksURL, issuer, audience string) (*JWKSTokenValidator, error) {
	if jwksURL == "" {
		return nil, errors.New("jwks url must be set")
	}

	keyProvider, err := keyfunc.NewDefault([]string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("failed to init JWKS keyfunc: %w", err)
	}

	opts := []jwt.ParserOption{
		jwt.WithLeeway(defaultLeeway),
		jwt.WithValidMethods([]string{
			jwt.SigningMethodRS256.Name, jwt.SigningMethodRS384.Name, jwt.SigningMethodRS512.Name,
			jwt.SigningMethodES256.Name, jwt.SigningMethodES384.Name,
		}),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}

	return &JWKSTokenValidator{
		keyfunc: keyProvider,
		parser:  jwt.NewParser(opts...),
	}, nil
}

// Validate реализует TokenValidator
func (v *JWKSTokenValidator) Validate(tokenString string) (*TokenClaims, error) {
	token, err := v.parser.ParseWithClaims(tokenString, &TokenClaims{}, v.keyfunc.Keyfunc)
	return claimsFrom(token, err)
}

func claimsFrom(token *jwt.Token, err error) (*TokenClaims, error) {
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, errors.New("malformed token")
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, errors.New("invalid token signature")
		case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, errors.New("token expired")
		default:
			return nil, fmt.Errorf("invalid token: %w", err)
		}
	}

	if claims, ok := token.Claims.(*TokenClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token claims")
}
