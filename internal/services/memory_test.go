package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"whatsapp-router/internal/models"
	"whatsapp-router/internal/notifier"
)

type memoryConversations struct {
	mu      sync.Mutex
	byID    map[string]*models.Conversation
	creates int
}

func newMemoryConversations() *memoryConversations {
	return &memoryConversations{byID: make(map[string]*models.Conversation)}
}

func (r *memoryConversations) FindLiveByPhone(ctx context.Context, phone string) (*models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.byID {
		if c.NormalizedPhone == phone && c.IsLive() {
			return c.Clone(), nil
		}
	}
	return nil, nil
}

func (r *memoryConversations) Create(ctx context.Context, conversation *models.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.byID {
		if c.NormalizedPhone == conversation.NormalizedPhone && c.IsLive() {
			return models.ErrDuplicateLiveConversation
		}
	}
	r.creates++
	r.byID[conversation.ID] = conversation.Clone()
	return nil
}

func (r *memoryConversations) GetByID(ctx context.Context, id string) (*models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	return c.Clone(), nil
}

func (r *memoryConversations) Update(ctx context.Context, id string, patch models.ConversationPatch) (*models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok || !c.IsLive() {
		return nil, nil
	}
	patch.Apply(c)
	return c.Clone(), nil
}

func (r *memoryConversations) ListActive(ctx context.Context) ([]*models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Conversation
	for _, c := range r.byID {
		if c.State == models.StateWaitingDepartment || c.State == models.StateConversing {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (r *memoryConversations) ListStale(ctx context.Context, before time.Time) ([]*models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Conversation
	for _, c := range r.byID {
		if c.IsLive() && c.UpdatedAt.Before(before) {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

func (r *memoryConversations) all() []*models.Conversation {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Conversation
	for _, c := range r.byID {
		out = append(out, c.Clone())
	}
	return out
}

type memoryMessages struct {
	mu   sync.Mutex
	list []*models.Message
}

func (r *memoryMessages) Append(ctx context.Context, message *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if message.ProviderMessageID != "" {
		for _, m := range r.list {
			if m.ProviderMessageID == message.ProviderMessageID {
				return models.ErrDuplicateMessage
			}
		}
	}
	copied := *message
	r.list = append(r.list, &copied)
	return nil
}

func (r *memoryMessages) find(match func(*models.Message) bool) *models.Message {
	for _, m := range r.list {
		if match(m) {
			copied := *m
			return &copied
		}
	}
	return nil
}

func (r *memoryMessages) GetByID(ctx context.Context, id string) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.find(func(m *models.Message) bool { return m.ID == id }), nil
}

func (r *memoryMessages) GetByProviderID(ctx context.Context, providerMessageID string) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.find(func(m *models.Message) bool {
		return m.ProviderMessageID != "" && m.ProviderMessageID == providerMessageID
	}), nil
}

func (r *memoryMessages) ListByConversation(ctx context.Context, conversationID string) ([]*models.Message, error) {
	return r.ListSince(ctx, conversationID, time.Time{})
}

func (r *memoryMessages) ListSince(ctx context.Context, conversationID string, since time.Time) ([]*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Message
	for _, m := range r.list {
		if m.ConversationID == conversationID && !m.CreatedAt.Before(since) {
			copied := *m
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *memoryMessages) UpdateDeliveryStatus(ctx context.Context, id string, from, to models.DeliveryStatus, providerMessageID, failureReason string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.list {
		if m.ID != id {
			continue
		}
		if m.DeliveryStatus != from {
			return false, nil
		}
		m.DeliveryStatus = to
		if providerMessageID != "" {
			m.ProviderMessageID = providerMessageID
		}
		if failureReason != "" {
			m.FailureReason = failureReason
		}
		return true, nil
	}
	return false, nil
}

type memoryDirectory struct {
	admins      map[int]*models.Admin
	departments []*models.Department
	clients     []*models.Client
}

func newDirectory() *memoryDirectory {
	return &memoryDirectory{
		admins: map[int]*models.Admin{
			1: {ID: 1, Name: "Ana", DepartmentIDs: []int{10}},
			2: {ID: 2, Name: "Bruno", DepartmentIDs: []int{20}},
			3: {ID: 3, Name: "Carla", DepartmentIDs: []int{20}},
			9: {ID: 9, Name: "Supervisor", AllDepartments: true},
		},
		departments: []*models.Department{
			{ID: 20, Name: "Suporte", MenuKey: "2", Order: 2},
			{ID: 10, Name: "Financeiro", MenuKey: "1", Order: 1},
			{ID: 30, Name: "Vendas", MenuKey: "3", Order: 3},
		},
		clients: []*models.Client{
			{ID: 77, Name: "Cliente", Phone: "5511988887777"},
		},
	}
}

func (d *memoryDirectory) GetByID(ctx context.Context, id int) (*models.Admin, error) {
	a, ok := d.admins[id]
	if !ok {
		return nil, nil
	}
	copied := *a
	return &copied, nil
}

func (d *memoryDirectory) ListByDepartment(ctx context.Context, departmentID int) ([]*models.Admin, error) {
	var out []*models.Admin
	for _, a := range d.admins {
		if a.AllDepartments || a.InDepartment(departmentID) {
			copied := *a
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memoryDepartments struct{ d *memoryDirectory }

func (r memoryDepartments) List(ctx context.Context) ([]*models.Department, error) {
	out := append([]*models.Department(nil), r.d.departments...)
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (r memoryDepartments) GetByID(ctx context.Context, id int) (*models.Department, error) {
	for _, dep := range r.d.departments {
		if dep.ID == id {
			return dep, nil
		}
	}
	return nil, nil
}

type memoryClients struct{ d *memoryDirectory }

func (r memoryClients) FindByPhone(ctx context.Context, normalizedPhone string) (*models.Client, error) {
	for _, c := range r.d.clients {
		if c.Phone == normalizedPhone {
			return c, nil
		}
	}
	return nil, nil
}

func (r memoryClients) GetByID(ctx context.Context, id int) (*models.Client, error) {
	for _, c := range r.d.clients {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, nil
}

type sentMessage struct {
	to   string
	body string
}

type fakeTransport struct {
	mu        sync.Mutex
	sent      []sentMessage
	fail      bool
	statuses  map[string]models.DeliveryStatus
	statusErr error
	polls     int
}

func (t *fakeTransport) Send(ctx context.Context, to string, body string) SendResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fail {
		return SendResult{Error: "provider unavailable"}
	}
	t.sent = append(t.sent, sentMessage{to: to, body: body})
	return SendResult{Success: true, ProviderMessageID: "wamid-" + itoaTest(len(t.sent))}
}

func (t *fakeTransport) Status(ctx context.Context, providerMessageID string) (models.DeliveryStatus, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.polls++
	if t.statusErr != nil {
		return "", t.statusErr
	}
	s, ok := t.statuses[providerMessageID]
	if !ok {
		return "", ErrStatusUnknown
	}
	return s, nil
}

func (t *fakeTransport) sentCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sent)
}

func itoaTest(v int) string {
	if v == 0 {
		return "0"
	}
	var buf []byte
	for v > 0 {
		buf = append([]byte{byte('0' + v%10)}, buf...)
		v /= 10
	}
	return string(buf)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []notifier.Event
}

func (p *recordingPublisher) Publish(event notifier.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) count(t notifier.EventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

type fixture struct {
	engine        *Engine
	conversations *memoryConversations
	messages      *memoryMessages
	directory     *memoryDirectory
	transport     *fakeTransport
	publisher     *recordingPublisher
	now           time.Time
}

var errBoom = errors.New("boom")

func newFixture(opts EngineOptions) *fixture {
	f := &fixture{
		conversations: newMemoryConversations(),
		messages:      &memoryMessages{},
		directory:     newDirectory(),
		transport:     &fakeTransport{statuses: map[string]models.DeliveryStatus{}},
		publisher:     &recordingPublisher{},
		now:           time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.engine = NewEngine(EngineDeps{
		Conversations: f.conversations,
		Messages:      f.messages,
		Admins:        f.directory,
		Departments:   memoryDepartments{f.directory},
		Clients:       memoryClients{f.directory},
		Transport:     f.transport,
		Publisher:     f.publisher,
		Now:           func() time.Time { return f.now },
	}, opts)
	return f
}
