package api

import (
	"context"

	"entregaflow-api/domain"
)

// Storage abstracts persistence for handlers.
type Storage interface {
	FetchBoard(ctx context.Context, agencyID string) (*domain.Board, string, error)
	InsertBoard(ctx context.Context, agencyID string, b domain.Board) (string, error)
	UpdateBoard(ctx context.Context, agencyID string, b domain.Board, etag string) error
	FetchAgency(ctx context.Context, agencyID string) (*domain.Agency, string, error)
	InsertAgency(ctx context.Context, a domain.Agency) error
	UpdateAgency(ctx context.Context, a domain.Agency, etag string) error
	SetAgencyStatus(ctx context.Context, agencyID, status string) error
	ListAgencies(ctx context.Context) ([]domain.Agency, error)
	DeleteAgency(ctx context.Context, agencyID string) error
	EnqueueActivity(ctx context.Context, ev domain.ActivityEvent) error
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}
