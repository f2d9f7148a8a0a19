package services

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/epicdraft-inc/epicdraft-engine/pkg/apperrors"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/models"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/repositories"
)

// checkRegenerationAllowed gates a generation request against the
// project's plan. The first generation of an artifact is always
// allowed; regenerations are limited by tier.
func checkRegenerationAllowed(ctx context.Context, artifactRepo repositories.ArtifactRepository, project *models.Project, epicID uuid.UUID, subScope string) error {
	existing, err := artifactRepo.Get(ctx, epicID, subScope)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil
		}
		return err
	}

	// The stored counter reflects completed regenerations, so a request
	// arriving now would be regeneration number counter+1.
	if !project.Plan.CanRegenerate(existing.RegenerateCount) {
		return apperrors.ErrRegenerationLimit
	}
	return nil
}
