package client

import (
	"errors"

	"github.com/boddenberg/contribution-bfa-go/internal/domain"
	"github.com/boddenberg/contribution-bfa-go/internal/infra/resilience"
)

// wrapExternal turns a failed call into the domain error taxonomy.
func wrapExternal(service string, status int, err error) error {
	if resilience.IsBreakerOpen(err) {
		return &domain.ErrCircuitOpen{Service: service}
	}
	var external *domain.ErrExternalService
	if errors.As(err, &external) {
		return external
	}
	return &domain.ErrExternalService{Service: service, Status: status, Err: err}
}
