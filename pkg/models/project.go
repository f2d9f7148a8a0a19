// Package models contains domain types for epicdraft-engine.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Project represents a tenant project. Every epic, design file and
// artifact hangs off exactly one project.
type Project struct {
	ID        uuid.UUID `json:"id"`
	OrgSlug   string    `json:"org_slug"`
	Name      string    `json:"name"`
	Plan      Plan      `json:"plan"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Plan is the billing tier of a project. It gates artifact regeneration.
type Plan string

const (
	PlanFree       Plan = "free"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

// proRegenerationCap is the number of regenerations a pro project gets
// per artifact after the initial generation.
const proRegenerationCap = 3

// IsValidPlan checks if the given plan is a known tier.
func IsValidPlan(p Plan) bool {
	switch p {
	case PlanFree, PlanPro, PlanEnterprise:
		return true
	}
	return false
}

// CanRegenerate reports whether a project on this plan may regenerate an
// artifact that has already been regenerated count times.
// Free projects get the first generation only, pro projects get up to
// proRegenerationCap regenerations, enterprise projects are uncapped.
func (p Plan) CanRegenerate(count int) bool {
	switch p {
	case PlanEnterprise:
		return true
	case PlanPro:
		return count < proRegenerationCap
	default:
		return false
	}
}
