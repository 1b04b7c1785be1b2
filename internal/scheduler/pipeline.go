package scheduler

import (
	"context"
	"time"

	"codeboard/internal/models"
	"codeboard/internal/provider"
	"codeboard/internal/reconcile"
	"codeboard/internal/snapshot"
)

// ProfileFetcher resolves a username into a raw profile
type ProfileFetcher interface {
	Fetch(ctx context.Context, username string) (*provider.RawProfile, error)
}

// SubmissionReconciler merges a profile's submission lists
type SubmissionReconciler interface {
	Reconcile(ctx context.Context, profile *provider.RawProfile, now time.Time) reconcile.Result
}

// ProviderPipeline chains the adapter, the reconciler and the snapshot builder
type ProviderPipeline struct {
	profiles   ProfileFetcher
	reconciler SubmissionReconciler
}

// NewProviderPipeline creates the fetch pipeline
func NewProviderPipeline(profiles ProfileFetcher, reconciler SubmissionReconciler) *ProviderPipeline {
	return &ProviderPipeline{profiles: profiles, reconciler: reconciler}
}

// Fetch builds a fresh snapshot for username
func (p *ProviderPipeline) Fetch(ctx context.Context, username string, now time.Time) (*models.Snapshot, error) {
	profile, err := p.profiles.Fetch(ctx, username)
	if err != nil {
		return nil, err
	}
	result := p.reconciler.Reconcile(ctx, profile, now)
	return snapshot.Build(profile, result, now), nil
}
