package auth

import "time"

// DefaultTTL is used when a config leaves TTL unset.
const DefaultTTL = 24 * time.Hour

// Service validates and issues bearer tokens for the relay.
type Service struct {
	jwtConfig *JWTConfig
}

// NewService creates a new authentication service.
func NewService(jwtConfig *JWTConfig) *Service {
	if jwtConfig.TTL <= 0 {
		jwtConfig.TTL = DefaultTTL
	}
	return &Service{jwtConfig: jwtConfig}
}

// IssueToken mints a token for userID. The relay itself never calls it; the CLI
// uses it to hand out development tokens.
func (s *Service) IssueToken(userID, name string) (string, error) {
	return GenerateToken(s.jwtConfig, userID, name)
}

// ValidateToken validates a JWT token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}
