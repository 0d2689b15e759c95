// Package core defines the provider-agnostic model boundary and the error
// classification that callers use to pace retries.
package core

import (
	"context"

	"github.com/lumikids/pip/pkg/core/types"
)

// Provider is the interface every model backend implements.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// CreateMessage sends a non-streaming request to the model.
	CreateMessage(ctx context.Context, req *types.MessageRequest) (*types.MessageResponse, error)
}
