// Package gateway exposes the authentication core over HTTP for the
// surrounding event-management application: token issuance, CSRF bootstrap,
// and identity introspection.
package gateway

import (
	"go.uber.org/zap"

	"eventgate/internal/auth"
)

type Service struct {
	log    *zap.SugaredLogger
	tokens *auth.TokenService
	csrf   *auth.CSRFService
}

func NewService(log *zap.SugaredLogger, tokens *auth.TokenService, csrf *auth.CSRFService) *Service {
	return &Service{log: log, tokens: tokens, csrf: csrf}
}
