package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/EisukeHirata/profile-nanobanana/internal/model"
	"github.com/EisukeHirata/profile-nanobanana/internal/repository"
)

// memProfileRepo mirrors the single-statement semantics of the SQL repository.
type memProfileRepo struct {
	mu       sync.Mutex
	profiles map[string]*model.Profile
	now      time.Time
}

func newMemProfileRepo() *memProfileRepo {
	return &memProfileRepo{
		profiles: map[string]*model.Profile{},
		now:      time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (r *memProfileRepo) seed(p model.Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := p
	r.profiles[p.Email] = &cp
}

func (r *memProfileRepo) get(email string) *model.Profile {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[email]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

func (r *memProfileRepo) upsert(email string, bootstrap int) (*model.Profile, bool) {
	if p, ok := r.profiles[email]; ok {
		return p, false
	}
	p := &model.Profile{
		Email:              email,
		Credits:            bootstrap,
		SubscriptionTier:   model.TierFree,
		SubscriptionStatus: model.StatusNone,
		CreatedAt:          r.now,
		UpdatedAt:          r.now,
	}
	r.profiles[email] = p
	return p, true
}

func (r *memProfileRepo) GetByEmail(_ context.Context, email string) (*model.Profile, error) {
	return r.get(email), nil
}

func (r *memProfileRepo) GetByCustomerID(_ context.Context, customerID string) (*model.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.profiles {
		if p.StripeCustomerID != nil && *p.StripeCustomerID == customerID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memProfileRepo) List(_ context.Context, _, _ int) ([]model.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, *p)
	}
	return out, nil
}

func (r *memProfileRepo) EnsureProfile(_ context.Context, email string, bootstrap int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, created := r.upsert(email, bootstrap)
	return created, nil
}

func (r *memProfileRepo) AddCredits(_ context.Context, email string, bootstrap, amount int) (int, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, created := r.upsert(email, bootstrap)
	p.Credits += amount
	return p.Credits, created, nil
}

func (r *memProfileRepo) SetSubscription(_ context.Context, email string, bootstrap int, tier model.SubscriptionTier, status model.SubscriptionStatus, customerID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, created := r.upsert(email, bootstrap)
	p.SubscriptionTier = tier
	p.SubscriptionStatus = status
	if p.StripeCustomerID == nil && customerID != "" {
		id := customerID
		p.StripeCustomerID = &id
	}
	return created, nil
}

func (r *memProfileRepo) SetCustomerID(_ context.Context, email string, bootstrap int, customerID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, created := r.upsert(email, bootstrap)
	if p.StripeCustomerID == nil {
		id := customerID
		p.StripeCustomerID = &id
	}
	return created, nil
}

func (r *memProfileRepo) Debit(_ context.Context, email string, amount int) (int, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[email]
	if !ok || p.Credits < amount {
		return 0, false, nil
	}
	p.Credits -= amount
	return p.Credits, true, nil
}

// memEventRepo follows the claim rules of the billing_events table.
type memEventRepo struct {
	mu     sync.Mutex
	status map[string]model.BillingEventStatus
	claims int
}

func newMemEventRepo() *memEventRepo {
	return &memEventRepo{status: map[string]model.BillingEventStatus{}}
}

func (r *memEventRepo) Claim(_ context.Context, eventID, _ string, _ []byte, _ time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.status[eventID]
	if ok && st != model.BillingEventFailed {
		return false, nil
	}
	r.status[eventID] = model.BillingEventProcessing
	r.claims++
	return true, nil
}

func (r *memEventRepo) MarkProcessed(_ context.Context, eventID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status[eventID] = model.BillingEventProcessed
	return nil
}

func (r *memEventRepo) MarkFailed(_ context.Context, eventID string, _ error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status[eventID] = model.BillingEventFailed
	return nil
}

func (r *memEventRepo) ListRecent(context.Context, int) ([]model.BillingEvent, error) {
	return nil, nil
}

type fakeProvider struct {
	subPrice   string
	subStatus  model.SubscriptionStatus
	subErr     error
	checkout   string
	subLookups int
}

func (p *fakeProvider) SubscriptionPrice(context.Context, string) (string, model.SubscriptionStatus, error) {
	p.subLookups++
	return p.subPrice, p.subStatus, p.subErr
}

func (p *fakeProvider) CheckoutPriceID(context.Context, string) (string, error) {
	return p.checkout, nil
}

type recordingPublisher struct {
	topics   []string
	payloads [][]byte
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, payload []byte) (string, error) {
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, payload)
	return "msg-1", nil
}

// scriptedGenerator returns one scripted reply per call.
type scriptedGenerator struct {
	mu      sync.Mutex
	replies []generatorReply
	calls   int
}

type generatorReply struct {
	result ImageResult
	err    error
}

func (g *scriptedGenerator) GenerateImage(ctx context.Context, _ ImageRequest) (ImageResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if err := ctx.Err(); err != nil {
		return ImageResult{}, err
	}
	if len(g.replies) == 0 {
		return ImageResult{}, errors.New("no scripted reply")
	}
	r := g.replies[0]
	g.replies = g.replies[1:]
	return r.result, r.err
}

// memGenerationRepo keeps records in insertion order.
type memGenerationRepo struct {
	mu      sync.Mutex
	records map[string]*model.Generation
	order   []string
	failErr error
}

func newMemGenerationRepo() *memGenerationRepo {
	return &memGenerationRepo{records: map[string]*model.Generation{}}
}

func (r *memGenerationRepo) Create(_ context.Context, g *model.Generation) error {
	if r.failErr != nil {
		return r.failErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	g.CreatedAt = time.Now()
	cp := *g
	cp.Images = append([]string{}, g.Images...)
	r.records[g.ID] = &cp
	r.order = append(r.order, g.ID)
	return nil
}

func (r *memGenerationRepo) ListByOwner(_ context.Context, owner string, limit int) ([]model.GenerationSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []model.GenerationSummary{}
	for i := len(r.order) - 1; i >= 0 && len(out) < limit; i-- {
		g, ok := r.records[r.order[i]]
		if !ok || g.UserEmail != owner {
			continue
		}
		out = append(out, model.GenerationSummary{ID: g.ID, Prompt: g.Prompt, Scene: g.Scene, CreatedAt: g.CreatedAt})
	}
	return out, nil
}

func (r *memGenerationRepo) GetByID(_ context.Context, id string) (*model.Generation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.records[id]
	if !ok {
		return nil, nil
	}
	cp := *g
	return &cp, nil
}

func (r *memGenerationRepo) Delete(_ context.Context, id, owner string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.records[id]
	if !ok || g.UserEmail != owner {
		return nil, repository.ErrGenerationNotFound
	}
	delete(r.records, id)
	return g.Images, nil
}

func (r *memGenerationRepo) RemoveImage(_ context.Context, id, owner string, index int) (string, []string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.records[id]
	if !ok {
		return "", nil, repository.ErrGenerationNotFound
	}
	if g.UserEmail != owner {
		return "", nil, repository.ErrGenerationForbidden
	}
	if index < 0 || index >= len(g.Images) {
		return "", nil, repository.ErrImageIndexOutOfRange
	}
	removed := g.Images[index]
	remaining := append(append([]string{}, g.Images[:index]...), g.Images[index+1:]...)
	if len(remaining) == 0 {
		delete(r.records, id)
	} else {
		g.Images = remaining
	}
	return removed, remaining, nil
}

type memImageStore struct {
	stored  []string
	removed []string
}

func (s *memImageStore) Store(_ context.Context, owner, _ string) (string, error) {
	url := "https://cdn.example.com/" + owner + "/" + string(rune('a'+len(s.stored))) + ".png"
	s.stored = append(s.stored, url)
	return url, nil
}

func (s *memImageStore) Remove(_ context.Context, url string) error {
	s.removed = append(s.removed, url)
	return nil
}
