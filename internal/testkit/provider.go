package testkit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"cardora-service/internal/provider"
)

// WebhookSignature is the only signature Provider accepts
const WebhookSignature = "t=1,v1=valid"

// Provider is a scriptable hosted-checkout provider
type Provider struct {
	mu       sync.Mutex
	sessions map[string]*provider.Session
	next     int

	CreateErr error
	GetErr    error

	CreateCalls int
	GetCalls    int
}

// NewProvider creates an empty fake provider
func NewProvider() *Provider {
	return &Provider{sessions: make(map[string]*provider.Session)}
}

func (p *Provider) CreateSession(ctx context.Context, req *provider.SessionRequest) (*provider.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CreateCalls++
	if p.CreateErr != nil {
		return nil, p.CreateErr
	}

	var total int64
	for _, li := range req.LineItems {
		total += li.Amount
	}

	p.next++
	id := fmt.Sprintf("cs_test_%d", p.next)
	s := &provider.Session{
		ID:          id,
		URL:         "https://checkout.test/pay/" + id,
		Status:      provider.SessionOpen,
		AmountTotal: total,
	}
	p.sessions[id] = s
	cp := *s
	return &cp, nil
}

func (p *Provider) GetSession(ctx context.Context, sessionID string) (*provider.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.GetCalls++
	if p.GetErr != nil {
		return nil, p.GetErr
	}
	s, ok := p.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("no such session %s", sessionID)
	}
	cp := *s
	return &cp, nil
}

// SetStatus changes what GetSession reports, creating the session if needed
func (p *Provider) SetStatus(sessionID string, status provider.SessionStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sessions[sessionID]
	if !ok {
		s = &provider.Session{ID: sessionID}
		p.sessions[sessionID] = s
	}
	s.Status = status
}

func (p *Provider) ParseWebhook(payload []byte, signature string) (*provider.WebhookEvent, error) {
	if signature != WebhookSignature {
		return nil, provider.ErrInvalidSignature
	}
	var evt provider.WebhookEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, errors.New("malformed payload")
	}
	return &evt, nil
}

// WebhookPayload encodes evt in the form ParseWebhook reads
func WebhookPayload(evt provider.WebhookEvent) []byte {
	b, _ := json.Marshal(evt)
	return b
}
