package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tekkistudio/sales-orchestrator/internal/cart"
	"github.com/tekkistudio/sales-orchestrator/internal/core"
	"github.com/tekkistudio/sales-orchestrator/internal/intent"
	"github.com/tekkistudio/sales-orchestrator/internal/knowledge"
	"github.com/tekkistudio/sales-orchestrator/internal/llm"
	"github.com/tekkistudio/sales-orchestrator/internal/model"
	"github.com/tekkistudio/sales-orchestrator/internal/response"
	"github.com/tekkistudio/sales-orchestrator/internal/session"
	"github.com/tekkistudio/sales-orchestrator/internal/store/storetest"
	"github.com/tekkistudio/sales-orchestrator/internal/strategy"
	"github.com/tekkistudio/sales-orchestrator/pkg/logger"
)

type stubClient struct {
	mu      sync.Mutex
	content string
	err     error
	calls   int
}

func (s *stubClient) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &llm.CompletionResponse{Content: s.content}, nil
}

func (s *stubClient) Name() string     { return "stub" }
func (s *stubClient) Models() []string { return nil }

func (s *stubClient) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fixture struct {
	orch     *Orchestrator
	fake     *storetest.Fake
	stub     *stubClient
	sessions *session.Store
	carts    *cart.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log, err := logger.New("error")
	require.NoError(t, err)

	fake := storetest.New()
	sessions := session.NewStore(fake, session.Options{}, log)
	t.Cleanup(sessions.Close)

	carts := cart.NewService(fake, log)
	stub := &stubClient{content: `{"content":"Bien sûr, parlons-en !","choices":["Comment ça fonctionne ?"]}`}
	gen := response.NewGenerator(llm.NewStructured(stub, time.Second, 512), log)

	orch := New(
		sessions,
		carts,
		intent.NewScorer(intent.DefaultSignalTables()),
		knowledge.NewIndex(fake, 0, log),
		strategy.NewSelector(),
		gen,
		nil,
		Options{ProductName: "Viens On S'Connaît", ProductPrice: 14000, Currency: "FCFA"},
		log,
	)
	return &fixture{orch: orch, fake: fake, stub: stub, sessions: sessions, carts: carts}
}

func TestHighIntentTriggersPurchase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.orch.Handle(ctx, "s1", "Je vais le prendre maintenant", "vosc-classic")
	require.NoError(t, err)

	assert.Equal(t, model.PhaseClosing, resp.Phase)
	assert.Equal(t, model.CartActionAdd, resp.Meta.CartAction)
	require.NotEmpty(t, resp.Choices)
	assert.Equal(t, "Je veux commander maintenant", resp.Choices[0],
		"purchase option leads on high intent")
	assert.Equal(t, 0, f.stub.callCount(), "closing never calls the completion service")

	require.NotNil(t, resp.Meta.OrderFragment)
	assert.Equal(t, "vosc-classic", resp.Meta.OrderFragment.ProductID)
	assert.Equal(t, int64(14000), resp.Meta.OrderFragment.UnitPrice)

	summary := f.carts.Summary(ctx, "s1")
	require.Len(t, summary.Items, 1)
	assert.Equal(t, int64(14000), summary.Total)
}

func TestPriceObjectionGetsTemplatedReply(t *testing.T) {
	f := newFixture(t)

	resp, err := f.orch.Handle(context.Background(), "s1", "Franchement c'est trop cher pour moi", "vosc-classic")
	require.NoError(t, err)

	assert.Equal(t, model.PhaseObjectionHandling, resp.Phase)
	assert.Contains(t, resp.Choices, "Voir les témoignages")
	assert.Contains(t, resp.Choices, "Je veux commander maintenant")
	assert.Equal(t, 0, f.stub.callCount(), "known objection families stay templated")
	assert.Nil(t, resp.Meta.OrderFragment, "an objection never mutates the cart")
}

func TestKnowledgeHitAnswersWithoutGeneration(t *testing.T) {
	f := newFixture(t)
	f.fake.Knowledge = []model.KnowledgeItem{{
		ID:              "delivery",
		Category:        "livraison",
		TriggerKeywords: []string{"livraison", "délai"},
		Question:        "quels sont les délais de livraison",
		Answer:          "Nous livrons {product} sous 24h à Dakar et sous 72h en région.",
		Priority:        8,
	}}

	resp, err := f.orch.Handle(context.Background(), "s1", "Quels sont les délais de livraison ?", "vosc-classic")
	require.NoError(t, err)

	assert.Contains(t, resp.Text, "le jeu Viens On S'Connaît")
	assert.Contains(t, resp.Text, "24h à Dakar")
	assert.Equal(t, 0, f.stub.callCount())
	assert.Equal(t, response.TechniqueKnowledgeAnswer, resp.Meta.Technique)
}

func TestCompletionFailureFallsBackToTemplate(t *testing.T) {
	f := newFixture(t)
	f.stub.err = errors.New("connection refused")

	resp, err := f.orch.Handle(context.Background(), "s1", "Racontez-moi votre histoire", "vosc-classic")
	require.NoError(t, err)

	assert.Equal(t, response.TechniqueFallback, resp.Meta.Technique)
	assert.NotEmpty(t, resp.Text)
	assert.Contains(t, resp.Choices, "Je veux commander maintenant")
}

func TestInitializeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.orch.Initialize(ctx, "s1", "vosc-classic")
	require.NoError(t, err)
	assert.NotEmpty(t, first.Text)
	assert.Equal(t, response.TechniqueWelcome, first.Meta.Technique)

	second, err := f.orch.Initialize(ctx, "s1", "vosc-classic")
	require.NoError(t, err)
	assert.Empty(t, second.Text, "re-initialization must not produce a second welcome")

	assert.Len(t, f.fake.MessageLog["s1"], 1)
}

func TestNoWelcomeAfterConversationStarted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.orch.Handle(ctx, "s1", "Bonjour", "vosc-classic")
	require.NoError(t, err)

	resp, err := f.orch.Initialize(ctx, "s1", "vosc-classic")
	require.NoError(t, err)
	assert.Empty(t, resp.Text)
}

func TestEmptyMessageRejected(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.Handle(context.Background(), "s1", "", "vosc-classic")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestPipelinePanicBecomesRecoveryReply(t *testing.T) {
	f := newFixture(t)
	f.orch.index = nil // search will panic

	resp, err := f.orch.Handle(context.Background(), "s1", "une question anodine", "vosc-classic")
	require.NoError(t, err, "pipeline faults never surface as raw errors")

	assert.True(t, resp.Meta.Recovered)
	assert.Equal(t, response.TechniqueRecovery, resp.Meta.Technique)
	assert.Contains(t, resp.Choices, "Parler à un conseiller")
}

func TestConcurrentMessagesSameSessionAreSerialized(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const workers = 4
	const perWorker = 5

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				_, err := f.orch.Handle(ctx, "s1", "peut-être", "vosc-classic")
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	sess, err := f.sessions.GetOrCreate(ctx, "s1", "")
	require.NoError(t, err)
	assert.Len(t, sess.Messages, workers*perWorker*2,
		"every turn appends exactly one customer and one assistant message")
}

type capturePublisher struct {
	mu     sync.Mutex
	events []*model.SalesEvent
}

func (p *capturePublisher) Publish(ctx context.Context, event *model.SalesEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *capturePublisher) types() []model.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []model.EventType
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func seedCartFirstSession(f *fixture, sessionID string) {
	// A conversation row created by the cart path alone has no
	// metadata map yet.
	f.fake.Sessions[sessionID] = &model.Session{
		ID:           sessionID,
		CurrentPhase: model.PhaseRapportBuilding,
		CreatedAt:    time.Now(),
		LastActivity: time.Now(),
	}
}

func TestHandleOnCartFirstSession(t *testing.T) {
	f := newFixture(t)
	seedCartFirstSession(f, "s1")

	resp, err := f.orch.Handle(context.Background(), "s1", "Bonjour", "vosc-classic")
	require.NoError(t, err)

	assert.False(t, resp.Meta.Recovered, "a hydrated session without metadata must answer normally")
	assert.NotEqual(t, response.TechniqueRecovery, resp.Meta.Technique)
}

func TestInitializeOnCartFirstSession(t *testing.T) {
	f := newFixture(t)
	seedCartFirstSession(f, "s1")

	resp, err := f.orch.Initialize(context.Background(), "s1", "vosc-classic")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Text)
	assert.Equal(t, response.TechniqueWelcome, resp.Meta.Technique)
}

func TestSessionSnapshotIsIsolated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.orch.Handle(ctx, "s1", "Bonjour", "vosc-classic")
	require.NoError(t, err)

	snap, err := f.orch.Session(ctx, "s1")
	require.NoError(t, err)
	snap.Metadata["tampered"] = "yes"
	snap.Messages = append(snap.Messages, model.Message{Role: model.RoleCustomer, Text: "fantôme"})

	live, err := f.sessions.GetOrCreate(ctx, "s1", "")
	require.NoError(t, err)
	assert.NotContains(t, live.Metadata, "tampered")
	assert.Len(t, live.Messages, 2)
}

func TestLockMapDrainsAfterTurns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 3; w++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := string(rune('a' + n))
			_, err := f.orch.Handle(ctx, id, "peut-être", "vosc-classic")
			assert.NoError(t, err)
		}(w)
	}
	wg.Wait()

	f.orch.mu.Lock()
	held := len(f.orch.locks)
	f.orch.mu.Unlock()
	assert.Zero(t, held, "lock entries must be released with their last holder")
}

func TestAnonymousTurnsGetDistinctSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.orch.Handle(ctx, "", "Bonjour", "vosc-classic")
	require.NoError(t, err)
	second, err := f.orch.Handle(ctx, "", "Bonjour", "vosc-classic")
	require.NoError(t, err)

	assert.NotEmpty(t, first.SessionID)
	assert.NotEmpty(t, second.SessionID)
	assert.NotEqual(t, first.SessionID, second.SessionID)
}

func TestResetEvictsSessionAndPublishes(t *testing.T) {
	f := newFixture(t)
	pub := &capturePublisher{}
	f.orch.publisher = pub
	ctx := context.Background()

	_, err := f.orch.Handle(ctx, "s1", "Bonjour", "vosc-classic")
	require.NoError(t, err)

	f.orch.Reset(ctx, "s1")

	assert.Equal(t, 0, f.sessions.CachedCount())
	assert.Contains(t, pub.types(), model.EventTypeSessionEvicted)
	_, persisted := f.fake.Sessions["s1"]
	assert.True(t, persisted, "reset flushes the session before dropping it")
}

func TestIntentScoreRecordedOnSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.orch.Handle(ctx, "s1", "C'est disponible en ce moment ?", "vosc-classic")
	require.NoError(t, err)

	sess, err := f.sessions.GetOrCreate(ctx, "s1", "")
	require.NoError(t, err)
	assert.Equal(t, "60", sess.Metadata[model.MetaLastIntentScore])
}
