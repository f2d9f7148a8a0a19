package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/epicdraft-inc/epicdraft-engine/pkg/apperrors"
	"github.com/epicdraft-inc/epicdraft-engine/pkg/models"
)

// In-memory repository implementations for tests. They enforce the same
// invariants as the SQL implementations (stage transition pinning,
// upsert counter increments, tree depth validation) without a database.

// MemoryProjectRepository is an in-memory ProjectRepository.
type MemoryProjectRepository struct {
	mu       sync.Mutex
	projects map[uuid.UUID]*models.Project
}

func NewMemoryProjectRepository() *MemoryProjectRepository {
	return &MemoryProjectRepository{projects: make(map[uuid.UUID]*models.Project)}
}

func (r *MemoryProjectRepository) Create(_ context.Context, project *models.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.projects[project.ID]; ok {
		existing.OrgSlug = project.OrgSlug
		existing.Name = project.Name
		return nil
	}
	cp := *project
	r.projects[project.ID] = &cp
	return nil
}

func (r *MemoryProjectRepository) Get(_ context.Context, id uuid.UUID) (*models.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *MemoryProjectRepository) UpdatePlan(_ context.Context, id uuid.UUID, plan models.Plan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !models.IsValidPlan(plan) {
		return apperrors.NewValidation("plan", "unknown plan")
	}
	p, ok := r.projects[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	p.Plan = plan
	return nil
}

func (r *MemoryProjectRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.projects[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(r.projects, id)
	return nil
}

// MemoryEpicRepository is an in-memory EpicRepository.
type MemoryEpicRepository struct {
	mu    sync.Mutex
	epics map[uuid.UUID]*models.Epic

	// UpdateStageErr, when set, is returned by every UpdateStage call.
	UpdateStageErr error
}

func NewMemoryEpicRepository() *MemoryEpicRepository {
	return &MemoryEpicRepository{epics: make(map[uuid.UUID]*models.Epic)}
}

func (r *MemoryEpicRepository) Create(_ context.Context, epic *models.Epic) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if epic.ID == uuid.Nil {
		epic.ID = uuid.New()
	}
	epic.CreatedAt = time.Now()
	epic.UpdatedAt = epic.CreatedAt
	cp := *epic
	r.epics[epic.ID] = &cp
	return nil
}

func (r *MemoryEpicRepository) Get(_ context.Context, id uuid.UUID) (*models.Epic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.epics[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (r *MemoryEpicRepository) GetByProject(_ context.Context, projectID uuid.UUID) ([]*models.Epic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Epic
	for _, e := range r.epics {
		if e.ProjectID == projectID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *MemoryEpicRepository) Update(_ context.Context, epic *models.Epic) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.epics[epic.ID]
	if !ok {
		return apperrors.ErrNotFound
	}
	stored.Name = epic.Name
	stored.Description = epic.Description
	stored.Speciality = epic.Speciality
	stored.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryEpicRepository) UpdateStage(_ context.Context, id uuid.UUID, from, to models.Stage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.UpdateStageErr != nil {
		return r.UpdateStageErr
	}
	e, ok := r.epics[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	if !from.CanTransitionTo(to) || e.Stage != from {
		return apperrors.ErrInvalidTransition
	}
	e.Stage = to
	e.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryEpicRepository) SetBackendLogic(_ context.Context, id uuid.UUID, transcription, audioKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.epics[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	e.BackendLogicTranscription = transcription
	e.BackendLogicAudioKey = audioKey
	e.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryEpicRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.epics[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(r.epics, id)
	return nil
}

// MemoryDesignFileRepository is an in-memory DesignFileRepository.
type MemoryDesignFileRepository struct {
	mu    sync.Mutex
	files map[uuid.UUID]*models.DesignFile
}

func NewMemoryDesignFileRepository() *MemoryDesignFileRepository {
	return &MemoryDesignFileRepository{files: make(map[uuid.UUID]*models.DesignFile)}
}

func (r *MemoryDesignFileRepository) CreateBatch(_ context.Context, files []*models.DesignFile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for _, f := range files {
		if f.ID == uuid.Nil {
			f.ID = uuid.New()
		}
		f.CreatedAt = now
		f.UpdatedAt = now
		cp := *f
		r.files[f.ID] = &cp
	}
	return nil
}

func (r *MemoryDesignFileRepository) Get(_ context.Context, id uuid.UUID) (*models.DesignFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (r *MemoryDesignFileRepository) GetByEpic(_ context.Context, epicID uuid.UUID) ([]*models.DesignFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var mains []*models.DesignFile
	children := make(map[uuid.UUID][]*models.DesignFile)
	for _, f := range r.files {
		if f.EpicID != epicID {
			continue
		}
		cp := *f
		if cp.IsMain() {
			mains = append(mains, &cp)
		} else {
			children[cp.ParentID] = append(children[cp.ParentID], &cp)
		}
	}

	sortFiles(mains)
	var out []*models.DesignFile
	for _, m := range mains {
		out = append(out, m)
		kids := children[m.ID]
		sortFiles(kids)
		out = append(out, kids...)
	}
	return out, nil
}

func sortFiles(files []*models.DesignFile) {
	for i := 1; i < len(files); i++ {
		for j := i; j > 0 && files[j-1].OrderIndex > files[j].OrderIndex; j-- {
			files[j-1], files[j] = files[j], files[j-1]
		}
	}
}

func (r *MemoryDesignFileRepository) ApplyRewrites(_ context.Context, epicID uuid.UUID, rewrites []models.FileRewrite) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := make(map[uuid.UUID]*models.DesignFile)
	for id, f := range r.files {
		if f.EpicID == epicID {
			current[id] = f
		}
	}
	if !models.ValidateTreeDepth(current, rewrites) {
		return apperrors.NewValidation("rewrites", "rearrangement exceeds max screen nesting depth")
	}

	for _, rw := range rewrites {
		f, ok := current[rw.FileID]
		if !ok {
			return apperrors.ErrNotFound
		}
		f.Filename = rw.Filename
		f.Description = rw.Description
		f.ParentID = rw.ParentID
		f.OrderIndex = rw.OrderIndex
		f.UpdatedAt = time.Now()
	}
	return nil
}

func (r *MemoryDesignFileRepository) SetScreenDoc(_ context.Context, id uuid.UUID, doc string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	if f.ScreenDoc != "" {
		f.ScreenDocRegenCount++
	}
	f.ScreenDoc = doc
	f.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryDesignFileRepository) SetTranscriptionFragment(_ context.Context, id uuid.UUID, fragment string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	f.TranscriptionFragment = fragment
	f.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryDesignFileRepository) GetByObjectKey(_ context.Context, epicID uuid.UUID, objectKey string) (*models.DesignFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.files {
		if f.EpicID == epicID && f.ObjectKey == objectKey {
			cp := *f
			return &cp, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (r *MemoryDesignFileRepository) Delete(_ context.Context, id uuid.UUID) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[id]
	if !ok {
		return "", apperrors.ErrNotFound
	}
	for _, child := range r.files {
		if child.ParentID == id {
			child.ParentID = uuid.Nil
		}
	}
	delete(r.files, id)
	return f.ObjectKey, nil
}

func (r *MemoryDesignFileRepository) DeleteByEpic(_ context.Context, epicID uuid.UUID) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var keys []string
	for id, f := range r.files {
		if f.EpicID == epicID {
			keys = append(keys, f.ObjectKey)
			delete(r.files, id)
		}
	}
	return keys, nil
}

// MemoryArtifactRepository is an in-memory ArtifactRepository.
type MemoryArtifactRepository struct {
	mu        sync.Mutex
	artifacts map[uuid.UUID]map[string]*models.Artifact

	// UpsertErr, when set, is returned by every Upsert call.
	UpsertErr error
}

func NewMemoryArtifactRepository() *MemoryArtifactRepository {
	return &MemoryArtifactRepository{artifacts: make(map[uuid.UUID]map[string]*models.Artifact)}
}

func (r *MemoryArtifactRepository) Upsert(_ context.Context, artifact *models.Artifact) (*models.Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.UpsertErr != nil {
		return nil, r.UpsertErr
	}

	byScope, ok := r.artifacts[artifact.EpicID]
	if !ok {
		byScope = make(map[string]*models.Artifact)
		r.artifacts[artifact.EpicID] = byScope
	}

	now := time.Now()
	if existing, ok := byScope[artifact.SubScope]; ok {
		existing.Content = artifact.Content
		existing.RegenerateCount++
		existing.UpdatedAt = now
		cp := *existing
		return &cp, nil
	}

	stored := &models.Artifact{
		ID:        uuid.New(),
		EpicID:    artifact.EpicID,
		SubScope:  artifact.SubScope,
		Content:   artifact.Content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	byScope[artifact.SubScope] = stored
	cp := *stored
	return &cp, nil
}

func (r *MemoryArtifactRepository) Get(_ context.Context, epicID uuid.UUID, subScope string) (*models.Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.artifacts[epicID][subScope]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *MemoryArtifactRepository) GetByEpic(_ context.Context, epicID uuid.UUID) ([]*models.Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Artifact
	for _, a := range r.artifacts[epicID] {
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (r *MemoryArtifactRepository) DeleteByEpic(_ context.Context, epicID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.artifacts, epicID)
	return nil
}

// MemoryNotionRepository is an in-memory NotionRepository.
type MemoryNotionRepository struct {
	mu           sync.Mutex
	integrations map[uuid.UUID]*models.NotionIntegration
	mappings     map[uuid.UUID][]*models.NotionDatabaseMapping
}

func NewMemoryNotionRepository() *MemoryNotionRepository {
	return &MemoryNotionRepository{
		integrations: make(map[uuid.UUID]*models.NotionIntegration),
		mappings:     make(map[uuid.UUID][]*models.NotionDatabaseMapping),
	}
}

func (r *MemoryNotionRepository) SaveIntegration(_ context.Context, integration *models.NotionIntegration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if integration.ID == uuid.Nil {
		integration.ID = uuid.New()
	}
	cp := *integration
	r.integrations[integration.ProjectID] = &cp
	return nil
}

func (r *MemoryNotionRepository) GetIntegration(_ context.Context, projectID uuid.UUID) (*models.NotionIntegration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.integrations[projectID]
	if !ok {
		return nil, apperrors.ErrNotionNotConnected
	}
	cp := *n
	return &cp, nil
}

func (r *MemoryNotionRepository) DeleteIntegration(_ context.Context, projectID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.integrations[projectID]; !ok {
		return apperrors.ErrNotionNotConnected
	}
	delete(r.integrations, projectID)
	delete(r.mappings, projectID)
	return nil
}

func (r *MemoryNotionRepository) ReplaceMappings(_ context.Context, projectID uuid.UUID, mappings []*models.NotionDatabaseMapping) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	replaced := make([]*models.NotionDatabaseMapping, 0, len(mappings))
	for _, m := range mappings {
		if m.ID == uuid.Nil {
			m.ID = uuid.New()
		}
		m.ProjectID = projectID
		cp := *m
		replaced = append(replaced, &cp)
	}
	r.mappings[projectID] = replaced
	return nil
}

func (r *MemoryNotionRepository) GetMappings(_ context.Context, projectID uuid.UUID) ([]*models.NotionDatabaseMapping, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.NotionDatabaseMapping, 0, len(r.mappings[projectID]))
	for _, m := range r.mappings[projectID] {
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

var (
	_ ProjectRepository    = (*MemoryProjectRepository)(nil)
	_ EpicRepository       = (*MemoryEpicRepository)(nil)
	_ DesignFileRepository = (*MemoryDesignFileRepository)(nil)
	_ ArtifactRepository   = (*MemoryArtifactRepository)(nil)
	_ NotionRepository     = (*MemoryNotionRepository)(nil)
)
