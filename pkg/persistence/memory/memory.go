// Package memory provides an in-process persistence implementation used by tests and local runs.
package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/dukex/leadflow/pkg/models"
	"github.com/dukex/leadflow/pkg/persistence"
	"github.com/google/uuid"
)

// Persistence keeps every record in maps guarded by a single mutex.
type Persistence struct {
	mu sync.RWMutex

	users         map[string]models.User
	businesses    map[string]models.Business
	templates     map[string]models.EmailTemplate
	emailLogs     map[string]models.EmailLog
	workflows     map[string]models.Workflow
	executions    map[string]models.ExecutionLog
	notifications []models.Notification
	triggers      map[string]models.TriggerDefinition
	triggerRuns   []models.TriggerExecution
	scrapingJobs  map[string]models.ScrapingJob
	tables        map[string][]map[string]any
}

var _ persistence.Persistence = (*Persistence)(nil)

// NewPersistence creates an empty in-memory store.
func NewPersistence() *Persistence {
	return &Persistence{
		users:        make(map[string]models.User),
		businesses:   make(map[string]models.Business),
		templates:    make(map[string]models.EmailTemplate),
		emailLogs:    make(map[string]models.EmailLog),
		workflows:    make(map[string]models.Workflow),
		executions:   make(map[string]models.ExecutionLog),
		triggers:     make(map[string]models.TriggerDefinition),
		scrapingJobs: make(map[string]models.ScrapingJob),
		tables:       make(map[string][]map[string]any),
	}
}

func (p *Persistence) HealthCheck(_ context.Context) error { return nil }

func (p *Persistence) Close(_ context.Context) error { return nil }

func (p *Persistence) BusinessRepository() persistence.BusinessRepository { return businessRepo{p} }

func (p *Persistence) UserRepository() persistence.UserRepository { return userRepo{p} }

func (p *Persistence) TemplateRepository() persistence.TemplateRepository { return templateRepo{p} }

func (p *Persistence) EmailLogRepository() persistence.EmailLogRepository { return emailLogRepo{p} }

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository { return workflowRepo{p} }

func (p *Persistence) ExecutionLogRepository() persistence.ExecutionLogRepository {
	return executionLogRepo{p}
}

func (p *Persistence) NotificationRepository() persistence.NotificationRepository {
	return notificationRepo{p}
}

func (p *Persistence) TriggerRepository() persistence.TriggerRepository { return triggerRepo{p} }

func (p *Persistence) ScrapingJobRepository() persistence.ScrapingJobRepository {
	return scrapingJobRepo{p}
}

func (p *Persistence) TableStore() persistence.TableStore { return tableStore{p} }

// PutUser stores or replaces a user.
func (p *Persistence) PutUser(user models.User) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.users[user.ID] = user
}

// PutTemplate stores or replaces an email template.
func (p *Persistence) PutTemplate(template models.EmailTemplate) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.templates[template.ID] = template
}

// TriggerExecutions returns the recorded trigger firings in insertion order.
func (p *Persistence) TriggerExecutions() []models.TriggerExecution {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return slices.Clone(p.triggerRuns)
}

// EmailLogs returns the stored email logs ordered by creation time.
func (p *Persistence) EmailLogs() []models.EmailLog {
	p.mu.RLock()
	defer p.mu.RUnlock()

	logs := slices.Collect(maps.Values(p.emailLogs))
	slices.SortFunc(logs, func(a, b models.EmailLog) int { return a.CreatedAt.Compare(b.CreatedAt) })

	return logs
}

// TableRows returns a copy of the rows written to table through the TableStore.
func (p *Persistence) TableRows(table string) []map[string]any {
	p.mu.RLock()
	defer p.mu.RUnlock()

	rows := make([]map[string]any, 0, len(p.tables[table]))
	for _, row := range p.tables[table] {
		rows = append(rows, maps.Clone(row))
	}

	return rows
}

type businessRepo struct{ p *Persistence }

func (r businessRepo) GetByID(_ context.Context, id string) (*models.Business, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	business, ok := r.p.businesses[id]
	if !ok {
		return nil, persistence.NewEntityError("GetByID", "business", id, persistence.ErrBusinessNotFound)
	}

	return cloneBusiness(business), nil
}

func (r businessRepo) Insert(_ context.Context, business *models.Business) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	for _, existing := range r.p.businesses {
		if existing.UserID == business.UserID && existing.Name == business.Name && existing.Address == business.Address {
			return persistence.NewEntityError("Insert", "business", business.Name, persistence.ErrDuplicateBusiness)
		}
	}

	if business.ID == "" {
		business.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	if business.CreatedAt.IsZero() {
		business.CreatedAt = now
	}

	business.UpdatedAt = now
	r.p.businesses[business.ID] = *cloneBusiness(*business)

	return nil
}

func (r businessRepo) UpdateEmailStatus(_ context.Context, id, status string, sentAt *time.Time) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	business, ok := r.p.businesses[id]
	if !ok {
		return persistence.NewEntityError("UpdateEmailStatus", "business", id, persistence.ErrBusinessNotFound)
	}

	business.EmailStatus = status
	business.EmailSent = business.EmailSent || status == models.EmailStatusSent

	if sentAt != nil {
		at := *sentAt
		business.EmailSentAt = &at
	}

	business.UpdatedAt = time.Now().UTC()
	r.p.businesses[id] = business

	return nil
}

func (r businessRepo) Find(_ context.Context, filter models.BusinessFilter) ([]*models.Business, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	found := make([]*models.Business, 0)

	for _, business := range r.p.businesses {
		if business.UserID != filter.UserID {
			continue
		}

		if filter.Category != "" && business.Category != filter.Category {
			continue
		}

		if filter.NotEmailed && business.EmailSent {
			continue
		}

		if filter.CreatedAfter != nil && !business.CreatedAt.After(*filter.CreatedAfter) {
			continue
		}

		found = append(found, cloneBusiness(business))
	}

	sort.SliceStable(found, func(i, j int) bool {
		if found[i].CreatedAt.Equal(found[j].CreatedAt) {
			return found[i].ID < found[j].ID
		}

		return found[i].CreatedAt.Before(found[j].CreatedAt)
	})

	if filter.Limit > 0 && len(found) > filter.Limit {
		found = found[:filter.Limit]
	}

	return found, nil
}

func cloneBusiness(business models.Business) *models.Business {
	business.Extra = maps.Clone(business.Extra)

	return &business
}

type userRepo struct{ p *Persistence }

func (r userRepo) GetByID(_ context.Context, id string) (*models.User, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	user, ok := r.p.users[id]
	if !ok {
		return nil, persistence.NewEntityError("GetByID", "user", id, persistence.ErrUserNotFound)
	}

	return &user, nil
}

type templateRepo struct{ p *Persistence }

func (r templateRepo) GetByID(_ context.Context, id string) (*models.EmailTemplate, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	template, ok := r.p.templates[id]
	if !ok {
		return nil, persistence.NewEntityError("GetByID", "email template", id, persistence.ErrTemplateNotFound)
	}

	return &template, nil
}

type emailLogRepo struct{ p *Persistence }

func (r emailLogRepo) Insert(_ context.Context, log *models.EmailLog) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if log.ID == "" {
		log.ID = uuid.New().String()
	}

	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	r.p.emailLogs[log.ID] = *log

	return nil
}

func (r emailLogRepo) UpdateStatus(_ context.Context, id, status, errMessage string, sentAt *time.Time) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	log, ok := r.p.emailLogs[id]
	if !ok {
		return nil
	}

	log.Status = status
	log.Error = errMessage

	if sentAt != nil {
		at := *sentAt
		log.SentAt = &at
	}

	r.p.emailLogs[id] = log

	return nil
}

func (r emailLogRepo) HasSent(_ context.Context, businessID, templateID string) (bool, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	for _, log := range r.p.emailLogs {
		if log.BusinessID == businessID && log.TemplateID == templateID && log.Status == models.EmailStatusSent {
			return true, nil
		}
	}

	return false, nil
}

func (r emailLogRepo) SentSince(_ context.Context, businessID string, since time.Time) (bool, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	for _, log := range r.p.emailLogs {
		if log.BusinessID == businessID && sentAtOrAfter(log, since) {
			return true, nil
		}
	}

	return false, nil
}

func (r emailLogRepo) CountSentByUserSince(_ context.Context, userID string, since time.Time) (int, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	count := 0

	for _, log := range r.p.emailLogs {
		if log.UserID == userID && sentAtOrAfter(log, since) {
			count++
		}
	}

	return count, nil
}

func sentAtOrAfter(log models.EmailLog, since time.Time) bool {
	return log.Status == models.EmailStatusSent && log.SentAt != nil && !log.SentAt.Before(since)
}

type workflowRepo struct{ p *Persistence }

func (r workflowRepo) GetByID(_ context.Context, id string) (*models.Workflow, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	workflow, ok := r.p.workflows[id]
	if !ok {
		return nil, persistence.NewEntityError("GetByID", "workflow", id, persistence.ErrWorkflowNotFound)
	}

	return &workflow, nil
}

func (r workflowRepo) Save(_ context.Context, workflow *models.Workflow) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	now := time.Now().UTC()

	if workflow.ID == "" {
		workflow.ID = uuid.New().String()
	}

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now
	r.p.workflows[workflow.ID] = *workflow

	return nil
}

func (r workflowRepo) RecordRun(_ context.Context, id string, at time.Time) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	workflow, ok := r.p.workflows[id]
	if !ok {
		return persistence.NewEntityError("RecordRun", "workflow", id, persistence.ErrWorkflowNotFound)
	}

	workflow.LastRunAt = &at
	workflow.ExecutionCount++
	r.p.workflows[id] = workflow

	return nil
}

type executionLogRepo struct{ p *Persistence }

func (r executionLogRepo) Create(_ context.Context, log *models.ExecutionLog) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if log.ID == "" {
		log.ID = uuid.New().String()
	}

	if log.Status == "" {
		log.Status = models.ExecutionStatusPending
	}

	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	r.p.executions[log.ID] = cloneExecutionLog(*log)

	return nil
}

func (r executionLogRepo) GetByID(_ context.Context, id string) (*models.ExecutionLog, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	log, ok := r.p.executions[id]
	if !ok {
		return nil, persistence.NewEntityError("GetByID", "execution", id, persistence.ErrExecutionNotFound)
	}

	clone := cloneExecutionLog(log)

	return &clone, nil
}

func (r executionLogRepo) Update(_ context.Context, log *models.ExecutionLog) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	stored, ok := r.p.executions[log.ID]
	if !ok {
		return persistence.NewEntityError("Update", "execution", log.ID, persistence.ErrExecutionNotFound)
	}

	if stored.CompletedAt != nil {
		return persistence.NewEntityError("Update", "execution", log.ID, persistence.ErrExecutionCompleted)
	}

	stored.Status = log.Status
	stored.Logs = log.Logs
	stored.State = log.State
	stored.Error = log.Error
	stored.Attempt = log.Attempt
	stored.StartedAt = log.StartedAt
	stored.CompletedAt = log.CompletedAt
	r.p.executions[log.ID] = cloneExecutionLog(stored)

	return nil
}

func (r executionLogRepo) RecentStatuses(_ context.Context, workflowID string, limit int) ([]models.ExecutionStatus, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	closed := make([]models.ExecutionLog, 0)

	for _, log := range r.p.executions {
		if log.WorkflowID == workflowID && log.CompletedAt != nil {
			closed = append(closed, log)
		}
	}

	sort.SliceStable(closed, func(i, j int) bool {
		return closed[i].CompletedAt.After(*closed[j].CompletedAt)
	})

	statuses := make([]models.ExecutionStatus, 0, limit)
	for i := 0; i < len(closed) && i < limit; i++ {
		statuses = append(statuses, closed[i].Status)
	}

	return statuses, nil
}

func cloneExecutionLog(log models.ExecutionLog) models.ExecutionLog {
	log.Logs = slices.Clone(log.Logs)
	log.State = maps.Clone(log.State)

	return log
}

type notificationRepo struct{ p *Persistence }

func (r notificationRepo) Insert(_ context.Context, notification *models.Notification) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if notification.ID == "" {
		notification.ID = uuid.New().String()
	}

	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}

	r.p.notifications = append(r.p.notifications, *notification)

	return nil
}

// ListByUser returns newest first.
func (r notificationRepo) ListByUser(_ context.Context, userID string, limit int) ([]*models.Notification, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	found := make([]*models.Notification, 0)

	for i := len(r.p.notifications) - 1; i >= 0 && (limit <= 0 || len(found) < limit); i-- {
		if r.p.notifications[i].UserID == userID {
			n := r.p.notifications[i]
			found = append(found, &n)
		}
	}

	return found, nil
}

type triggerRepo struct{ p *Persistence }

func (r triggerRepo) Save(_ context.Context, trigger *models.TriggerDefinition) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if trigger.ID == "" {
		trigger.ID = uuid.New().String()
	}

	if trigger.CreatedAt.IsZero() {
		trigger.CreatedAt = time.Now().UTC()
	}

	r.p.triggers[trigger.ID] = *trigger

	return nil
}

func (r triggerRepo) Due(_ context.Context, now time.Time) ([]*models.TriggerDefinition, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	due := make([]*models.TriggerDefinition, 0)

	for _, trigger := range r.p.triggers {
		if trigger.IsDue(now) {
			t := trigger
			due = append(due, &t)
		}
	}

	sort.SliceStable(due, func(i, j int) bool {
		switch {
		case due[i].NextRunAt == nil:
			return due[j].NextRunAt != nil || due[i].ID < due[j].ID
		case due[j].NextRunAt == nil:
			return false
		default:
			return due[i].NextRunAt.Before(*due[j].NextRunAt)
		}
	})

	return due, nil
}

func (r triggerRepo) InsertExecution(_ context.Context, execution *models.TriggerExecution) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if execution.ID == "" {
		execution.ID = uuid.New().String()
	}

	if execution.ExecutedAt.IsZero() {
		execution.ExecutedAt = time.Now().UTC()
	}

	r.p.triggerRuns = append(r.p.triggerRuns, *execution)

	return nil
}

type scrapingJobRepo struct{ p *Persistence }

func (r scrapingJobRepo) Create(_ context.Context, job *models.ScrapingJob) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	now := time.Now().UTC()

	if job.ID == "" {
		job.ID = uuid.New().String()
	}

	if job.Status == "" {
		job.Status = models.ScrapingPending
	}

	job.CreatedAt = now
	job.UpdatedAt = now
	r.p.scrapingJobs[job.ID] = *job

	return nil
}

func (r scrapingJobRepo) GetByID(_ context.Context, id string) (*models.ScrapingJob, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	job, ok := r.p.scrapingJobs[id]
	if !ok {
		return nil, persistence.NewEntityError("GetByID", "scraping job", id, persistence.ErrScrapingJobNotFound)
	}

	job.Keywords = slices.Clone(job.Keywords)

	return &job, nil
}

func (r scrapingJobRepo) UpdateStatus(_ context.Context, id string, status models.ScrapingStatus, errMessage string) error {
	return r.update("UpdateStatus", id, func(job *models.ScrapingJob) {
		job.Status = status
		job.Error = errMessage
	})
}

func (r scrapingJobRepo) UpdateProgress(_ context.Context, id string, found, iterations int) error {
	return r.update("UpdateProgress", id, func(job *models.ScrapingJob) {
		job.Found = found
		job.Iterations = iterations
	})
}

func (r scrapingJobRepo) update(op, id string, mutate func(*models.ScrapingJob)) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	job, ok := r.p.scrapingJobs[id]
	if !ok {
		return persistence.NewEntityError(op, "scraping job", id, persistence.ErrScrapingJobNotFound)
	}

	mutate(&job)
	job.UpdatedAt = time.Now().UTC()
	r.p.scrapingJobs[id] = job

	return nil
}
