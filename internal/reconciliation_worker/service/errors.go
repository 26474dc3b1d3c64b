package service

import "errors"

var (
	ErrMissingTenant  = errors.New("tenant id is required")
	ErrTenantMismatch = errors.New("document tenant does not match batch tenant")
)
