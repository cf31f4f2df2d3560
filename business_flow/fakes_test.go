package businessflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/amirphl/momo-reconciler/app/jobqueue"
	"github.com/amirphl/momo-reconciler/app/services"
	"github.com/amirphl/momo-reconciler/config"
	"github.com/amirphl/momo-reconciler/models"
	"github.com/amirphl/momo-reconciler/repository"
	"github.com/amirphl/momo-reconciler/utils"
)

// memStore is an in-memory database with transactional rollback
type memStore struct {
	depth    int
	nextID   uint
	sms      map[uint]models.RawSms
	parsed   map[uint]models.ParsedPayment
	payments map[uint]models.Payment
	passes   map[uint]models.TicketPass
	audits   []models.AuditLog
	prompts  map[uint]models.SmsParserPrompt
	intents  map[models.IntentKind]map[uint]models.PaymentIntent

	settleCalls map[models.EntityPointer]int
	// failAudit makes audit writes for this action fail
	failAudit string
}

func newMemStore() *memStore {
	s := &memStore{
		sms:         map[uint]models.RawSms{},
		parsed:      map[uint]models.ParsedPayment{},
		payments:    map[uint]models.Payment{},
		passes:      map[uint]models.TicketPass{},
		prompts:     map[uint]models.SmsParserPrompt{},
		intents:     map[models.IntentKind]map[uint]models.PaymentIntent{},
		settleCalls: map[models.EntityPointer]int{},
	}
	for _, k := range []models.IntentKind{
		models.IntentKindTicket, models.IntentKindShop, models.IntentKindQuote,
		models.IntentKindDeposit, models.IntentKindMembership, models.IntentKindDonation,
	} {
		s.intents[k] = map[uint]models.PaymentIntent{}
	}
	return s
}

func (s *memStore) id() uint {
	s.nextID++
	return s.nextID
}

type memSnapshot struct {
	nextID   uint
	sms      map[uint]models.RawSms
	parsed   map[uint]models.ParsedPayment
	payments map[uint]models.Payment
	passes   map[uint]models.TicketPass
	audits   []models.AuditLog
	prompts  map[uint]models.SmsParserPrompt
	intents  map[models.IntentKind]map[uint]models.PaymentIntent
	settles  map[models.EntityPointer]int
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *memStore) snapshot() memSnapshot {
	intents := make(map[models.IntentKind]map[uint]models.PaymentIntent, len(s.intents))
	for k, v := range s.intents {
		intents[k] = copyMap(v)
	}
	return memSnapshot{
		nextID:   s.nextID,
		sms:      copyMap(s.sms),
		parsed:   copyMap(s.parsed),
		payments: copyMap(s.payments),
		passes:   copyMap(s.passes),
		audits:   append([]models.AuditLog(nil), s.audits...),
		prompts:  copyMap(s.prompts),
		intents:  intents,
		settles:  copyMap(s.settleCalls),
	}
}

func (s *memStore) restore(snap memSnapshot) {
	s.nextID = snap.nextID
	s.sms = snap.sms
	s.parsed = snap.parsed
	s.payments = snap.payments
	s.passes = snap.passes
	s.audits = snap.audits
	s.prompts = snap.prompts
	s.intents = snap.intents
	s.settleCalls = snap.settles
}

// WithTransaction joins an outer transaction; only the outermost one rolls back
func (s *memStore) WithTransaction(ctx context.Context, fn func(context.Context) error) error {
	if s.depth > 0 {
		return fn(ctx)
	}
	snap := s.snapshot()
	s.depth++
	err := fn(ctx)
	s.depth--
	if err != nil {
		s.restore(snap)
	}
	return err
}

// helpers used by tests

func (s *memStore) addIntent(kind models.IntentKind, amount int64, ref *string, createdAt time.Time) models.PaymentIntent {
	i := models.PaymentIntent{
		Kind:      kind,
		ID:        s.id(),
		Amount:    amount,
		Status:    "pending",
		Ref:       ref,
		Label:     string(kind),
		CreatedAt: createdAt,
	}
	s.intents[kind][i.ID] = i
	return i
}

func (s *memStore) intent(kind models.IntentKind, id uint) models.PaymentIntent {
	return s.intents[kind][id]
}

func (s *memStore) addSms(text string, status models.IngestStatus, receivedAt time.Time) models.RawSms {
	sms := models.RawSms{
		ID:           s.id(),
		Text:         text,
		FromMsisdn:   "+250788000111",
		ReceivedAt:   receivedAt,
		IngestStatus: status,
		CreatedAt:    receivedAt,
	}
	s.sms[sms.ID] = sms
	return sms
}

func (s *memStore) addParsed(smsID uint, amount int64, ref string, confidence float64) models.ParsedPayment {
	p := models.ParsedPayment{
		ID:            s.id(),
		SmsID:         smsID,
		Amount:        amount,
		Currency:      "RWF",
		Confidence:    confidence,
		ParserVersion: "rules:v1",
		Strategy:      models.ParseStrategyRules,
		CreatedAt:     utils.UTCNow(),
	}
	if ref != "" {
		p.Ref = utils.ToPtr(ref)
	}
	s.parsed[p.ID] = p
	return p
}

func (s *memStore) auditActions() []string {
	out := make([]string, 0, len(s.audits))
	for _, a := range s.audits {
		out = append(out, a.Action)
	}
	return out
}

func (s *memStore) parsedFor(smsID uint) []models.ParsedPayment {
	var out []models.ParsedPayment
	for _, p := range s.parsed {
		if p.SmsID == smsID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memStore) paymentsFor(smsID uint) []models.Payment {
	var out []models.Payment
	for _, p := range s.payments {
		if p.Metadata.SmsID != nil && *p.Metadata.SmsID == smsID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *memStore) passesFor(orderID uint) int {
	n := 0
	for _, p := range s.passes {
		if p.OrderID == orderID {
			n++
		}
	}
	return n
}

// RawSmsRepository

type memSmsRepo struct{ s *memStore }

func (r memSmsRepo) ByID(_ context.Context, id uint) (*models.RawSms, error) {
	sms, ok := r.s.sms[id]
	if !ok {
		return nil, nil
	}
	return &sms, nil
}

func (r memSmsRepo) ByIDForUpdate(ctx context.Context, id uint) (*models.RawSms, error) {
	return r.ByID(ctx, id)
}

func (r memSmsRepo) Save(_ context.Context, sms *models.RawSms) error {
	if sms.ID == 0 {
		sms.ID = r.s.id()
	}
	if sms.CreatedAt.IsZero() {
		sms.CreatedAt = utils.UTCNow()
	}
	r.s.sms[sms.ID] = *sms
	return nil
}

func (r memSmsRepo) UpdateState(_ context.Context, id uint, status models.IngestStatus, metadata models.SmsMetadata) error {
	sms, ok := r.s.sms[id]
	if !ok {
		return errors.New("sms missing")
	}
	sms.IngestStatus = status
	sms.Metadata = metadata
	r.s.sms[id] = sms
	return nil
}

func (r memSmsRepo) TransitionState(_ context.Context, id uint, from []models.IngestStatus, status models.IngestStatus, metadata models.SmsMetadata) (bool, error) {
	sms, ok := r.s.sms[id]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if sms.IngestStatus == f {
			sms.IngestStatus = status
			sms.Metadata = metadata
			r.s.sms[id] = sms
			return true, nil
		}
	}
	return false, nil
}

func (r memSmsRepo) list(keep func(models.RawSms) bool, limit int) []*models.RawSms {
	var out []*models.RawSms
	for _, sms := range r.s.sms {
		if keep(sms) {
			sms := sms
			out = append(out, &sms)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r memSmsRepo) ListByStatuses(_ context.Context, statuses []models.IngestStatus, limit int) ([]*models.RawSms, error) {
	return r.list(func(s models.RawSms) bool {
		for _, st := range statuses {
			if s.IngestStatus == st {
				return true
			}
		}
		return false
	}, limit), nil
}

func (r memSmsRepo) ListRecent(_ context.Context, limit int) ([]*models.RawSms, error) {
	return r.list(func(models.RawSms) bool { return true }, limit), nil
}

// ParsedPaymentRepository

type memParsedRepo struct{ s *memStore }

func (r memParsedRepo) ByID(_ context.Context, id uint) (*models.ParsedPayment, error) {
	p, ok := r.s.parsed[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r memParsedRepo) Save(_ context.Context, parsed *models.ParsedPayment) error {
	if parsed.ID == 0 {
		parsed.ID = r.s.id()
	}
	if parsed.CreatedAt.IsZero() {
		parsed.CreatedAt = utils.UTCNow()
	}
	r.s.parsed[parsed.ID] = *parsed
	return nil
}

func (r memParsedRepo) LatestBySmsID(_ context.Context, smsID uint) (*models.ParsedPayment, error) {
	rows := r.s.parsedFor(smsID)
	if len(rows) == 0 {
		return nil, nil
	}
	latest := rows[len(rows)-1]
	return &latest, nil
}

func (r memParsedRepo) LatestBySmsIDs(ctx context.Context, smsIDs []uint) (map[uint]*models.ParsedPayment, error) {
	out := make(map[uint]*models.ParsedPayment, len(smsIDs))
	for _, id := range smsIDs {
		if p, _ := r.LatestBySmsID(ctx, id); p != nil {
			out[id] = p
		}
	}
	return out, nil
}

func (r memParsedRepo) SetMatchedEntity(_ context.Context, id uint, pointer string) (bool, error) {
	p, ok := r.s.parsed[id]
	if !ok {
		return false, nil
	}
	if p.MatchedEntity != nil && !strings.HasPrefix(*p.MatchedEntity, "candidate:") {
		return false, nil
	}
	p.MatchedEntity = utils.ToPtr(pointer)
	r.s.parsed[id] = p
	return true, nil
}

// PaymentRepository

type memPaymentRepo struct{ s *memStore }

func (r memPaymentRepo) ByID(_ context.Context, id uint) (*models.Payment, error) {
	p, ok := r.s.payments[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r memPaymentRepo) ByIDForUpdate(ctx context.Context, id uint) (*models.Payment, error) {
	return r.ByID(ctx, id)
}

func (r memPaymentRepo) Save(_ context.Context, payment *models.Payment) error {
	if payment.ID == 0 {
		payment.ID = r.s.id()
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = utils.UTCNow()
	}
	r.s.payments[payment.ID] = *payment
	return nil
}

func (r memPaymentRepo) Update(_ context.Context, payment *models.Payment) error {
	if _, ok := r.s.payments[payment.ID]; !ok {
		return errors.New("payment missing")
	}
	r.s.payments[payment.ID] = *payment
	return nil
}

func (r memPaymentRepo) ListByStatus(_ context.Context, status models.PaymentStatus, limit int) ([]*models.Payment, error) {
	var out []*models.Payment
	for _, p := range r.s.payments {
		if p.Status == status {
			p := p
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memPaymentRepo) ListByParsedID(_ context.Context, parsedID uint, status models.PaymentStatus) ([]*models.Payment, error) {
	var out []*models.Payment
	for _, p := range r.s.payments {
		if p.SmsParsedID != nil && *p.SmsParsedID == parsedID && p.Status == status {
			p := p
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// PaymentIntentRepository

// memEntity marshals like the real rows: the intent fields are promoted
type memEntity struct {
	models.PaymentIntent
}

func (e memEntity) TableName() string {
	switch e.Kind {
	case models.IntentKindTicket:
		return "ticket_orders"
	case models.IntentKindShop:
		return "orders"
	case models.IntentKindQuote:
		return "insurance_quotes"
	case models.IntentKindDeposit:
		return "sacco_deposits"
	case models.IntentKindMembership:
		return "memberships"
	default:
		return "fund_donations"
	}
}

func (e memEntity) ToIntent() models.PaymentIntent { return e.PaymentIntent }

type memIntentRepo struct {
	s    *memStore
	kind models.IntentKind
}

func (r memIntentRepo) Kind() models.IntentKind { return r.kind }

func (r memIntentRepo) IntentByID(_ context.Context, id uint, _ bool) (models.Intent, error) {
	i, ok := r.s.intents[r.kind][id]
	if !ok {
		return nil, nil
	}
	return memEntity{PaymentIntent: i}, nil
}

func (r memIntentRepo) ListOpenByAmount(_ context.Context, amount int64, since, until time.Time) ([]models.PaymentIntent, error) {
	var out []models.PaymentIntent
	for _, i := range r.s.intents[r.kind] {
		if i.Status == "pending" && i.Amount == amount && !i.CreatedAt.Before(since) && !i.CreatedAt.After(until) {
			out = append(out, i)
		}
	}
	return out, nil
}

func (r memIntentRepo) ListOpenByRef(_ context.Context, ref string) ([]models.PaymentIntent, error) {
	var out []models.PaymentIntent
	for _, i := range r.s.intents[r.kind] {
		if i.Status == "pending" && i.Ref != nil && *i.Ref == ref {
			out = append(out, i)
		}
	}
	return out, nil
}

func (r memIntentRepo) MarkSettled(_ context.Context, id uint, ref string, _ time.Time) (models.Intent, error) {
	i, ok := r.s.intents[r.kind][id]
	if !ok {
		return nil, errors.New("intent missing")
	}
	i.Status = "paid"
	if r.kind == models.IntentKindDeposit || r.kind == models.IntentKindDonation {
		i.Status = "confirmed"
	}
	if r.kind == models.IntentKindMembership {
		i.Status = "active"
	}
	i.Ref = utils.ToPtr(ref)
	r.s.intents[r.kind][id] = i
	r.s.settleCalls[i.Pointer()]++
	return memEntity{PaymentIntent: i}, nil
}

// TicketPassRepository

type memPassRepo struct{ s *memStore }

func (r memPassRepo) CreateIfAbsent(_ context.Context, pass *models.TicketPass) (bool, error) {
	for _, p := range r.s.passes {
		if p.OrderID == pass.OrderID {
			return false, nil
		}
	}
	pass.ID = r.s.id()
	pass.CreatedAt = utils.UTCNow()
	r.s.passes[pass.ID] = *pass
	return true, nil
}

func (r memPassRepo) ByOrderID(_ context.Context, orderID uint) (*models.TicketPass, error) {
	for _, p := range r.s.passes {
		if p.OrderID == orderID {
			p := p
			return &p, nil
		}
	}
	return nil, nil
}

// AuditLogRepository

type memAuditRepo struct{ s *memStore }

func (r memAuditRepo) Save(_ context.Context, log *models.AuditLog) error {
	if r.s.failAudit != "" && log.Action == r.s.failAudit {
		return errors.New("audit store unavailable")
	}
	log.ID = r.s.id()
	log.CreatedAt = utils.UTCNow()
	r.s.audits = append(r.s.audits, *log)
	return nil
}

func (r memAuditRepo) List(_ context.Context, filter models.AuditLogFilter) ([]*models.AuditLog, error) {
	var out []*models.AuditLog
	for _, a := range r.s.audits {
		if filter.Action != nil && a.Action != *filter.Action {
			continue
		}
		a := a
		out = append(out, &a)
	}
	return out, nil
}

// SmsParserPromptRepository

type memPromptRepo struct{ s *memStore }

func (r memPromptRepo) ByID(_ context.Context, id uint) (*models.SmsParserPrompt, error) {
	p, ok := r.s.prompts[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r memPromptRepo) Save(_ context.Context, prompt *models.SmsParserPrompt) error {
	if prompt.ID == 0 {
		prompt.ID = r.s.id()
	}
	prompt.CreatedAt = utils.UTCNow()
	r.s.prompts[prompt.ID] = *prompt
	return nil
}

func (r memPromptRepo) List(_ context.Context, limit int) ([]*models.SmsParserPrompt, error) {
	var out []*models.SmsParserPrompt
	for _, p := range r.s.prompts {
		p := p
		out = append(out, &p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memPromptRepo) Active(_ context.Context) (*models.SmsParserPrompt, error) {
	for _, p := range r.s.prompts {
		if p.IsActive {
			p := p
			return &p, nil
		}
	}
	return nil, nil
}

func (r memPromptRepo) LatestVersion(_ context.Context) (int, error) {
	latest := 0
	for _, p := range r.s.prompts {
		if p.Version > latest {
			latest = p.Version
		}
	}
	return latest, nil
}

func (r memPromptRepo) Activate(_ context.Context, id uint) error {
	if _, ok := r.s.prompts[id]; !ok {
		return errors.New("prompt missing")
	}
	for pid, p := range r.s.prompts {
		p.IsActive = pid == id
		r.s.prompts[pid] = p
	}
	return nil
}

// collaborators

type fakeQueue struct {
	enqueued []uint
	opts     []jobqueue.EnqueueOptions
	err      error
}

func (q *fakeQueue) Enqueue(_ context.Context, smsID uint, opts jobqueue.EnqueueOptions) (string, error) {
	if q.err != nil {
		return "", q.err
	}
	q.enqueued = append(q.enqueued, smsID)
	q.opts = append(q.opts, opts)
	return fmt.Sprintf("job-%d", len(q.enqueued)), nil
}

func (q *fakeQueue) Overview(context.Context) (*jobqueue.Overview, error) {
	return &jobqueue.Overview{Waiting: int64(len(q.enqueued)), Totals: map[string]int64{"enqueued": int64(len(q.enqueued))}}, nil
}

type fakeParser struct {
	result *services.ParseResult
	err    error
	calls  int
}

func (p *fakeParser) Parse(context.Context, services.ParseInput) (*services.ParseResult, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	r := *p.result
	return &r, nil
}

type publishedEvent struct {
	Type    string
	Payload map[string]any
}

type fakePublisher struct {
	events []publishedEvent
}

func (p *fakePublisher) Publish(_ context.Context, eventType string, payload map[string]any) {
	p.events = append(p.events, publishedEvent{Type: eventType, Payload: payload})
}

func (p *fakePublisher) types() []string {
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// harness wires every flow over one memStore
type harness struct {
	store      *memStore
	queue      *fakeQueue
	parser     *fakeParser
	publisher  *fakePublisher
	intents    IntentRegistry
	matcher    CandidateMatcher
	audit      AuditRecorder
	settlement SettlementFlow
	ingest     SmsIngestFlow
	review     ManualReviewFlow
	prompts    SmsParserPromptFlow
	cfg        config.SMSConfig
}

const testWebhookToken = "test-webhook-token-0123456789"

func newHarness() *harness {
	s := newMemStore()
	h := &harness{
		store:     s,
		queue:     &fakeQueue{},
		parser:    &fakeParser{},
		publisher: &fakePublisher{},
		cfg: config.SMSConfig{
			WebhookToken:        testWebhookToken,
			ConfidenceThreshold: 0.65,
			LookbackMinutes:     1440,
			AutoSettle:          true,
		},
	}

	repos := make([]repository.PaymentIntentRepository, 0, len(s.intents))
	for kind := range s.intents {
		repos = append(repos, memIntentRepo{s: s, kind: kind})
	}
	h.intents = NewIntentRegistry(repos...)
	h.matcher = NewCandidateMatcher(h.intents, h.cfg.Lookback())
	h.audit = NewAuditRecorder(memAuditRepo{s: s})
	h.settlement = NewSettlementFlow(s, memSmsRepo{s: s}, memParsedRepo{s: s}, memPaymentRepo{s: s}, memPassRepo{s: s}, h.intents, h.audit, h.publisher)
	h.ingest = NewSmsIngestFlow(s, memSmsRepo{s: s}, memParsedRepo{s: s}, memPaymentRepo{s: s}, h.parser, h.matcher, h.settlement, h.queue, h.publisher, h.cfg, nil)
	h.review = NewManualReviewFlow(s, memSmsRepo{s: s}, memParsedRepo{s: s}, memPaymentRepo{s: s}, h.intents, h.matcher, h.queue, h.audit, nil)
	h.prompts = NewSmsParserPromptFlow(s, memPromptRepo{s: s}, h.parser, h.audit, h.cfg.ConfidenceThreshold)
	return h
}

func adminMetadata(adminID uint) *ClientMetadata {
	m := NewClientMetadata("10.0.0.1", "test-agent")
	m.SetActor(adminID)
	return m
}

func parseResult(amount int64, ref string, confidence float64) *services.ParseResult {
	r := &services.ParseResult{
		Amount:        amount,
		Currency:      "RWF",
		Confidence:    confidence,
		ParserVersion: "rules:v1",
		Strategy:      models.ParseStrategyRules,
	}
	if ref != "" {
		r.Ref = utils.ToPtr(ref)
	}
	return r
}
