// Package orchestrator wires the sales pipeline together: one entry
// point per inbound message, per-session ordering, recovery at the
// boundary.
package orchestrator

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tekkistudio/sales-orchestrator/internal/cart"
	"github.com/tekkistudio/sales-orchestrator/internal/core"
	"github.com/tekkistudio/sales-orchestrator/internal/events"
	"github.com/tekkistudio/sales-orchestrator/internal/intent"
	"github.com/tekkistudio/sales-orchestrator/internal/knowledge"
	"github.com/tekkistudio/sales-orchestrator/internal/llm"
	"github.com/tekkistudio/sales-orchestrator/internal/model"
	"github.com/tekkistudio/sales-orchestrator/internal/response"
	"github.com/tekkistudio/sales-orchestrator/internal/session"
	"github.com/tekkistudio/sales-orchestrator/internal/strategy"
	"github.com/tekkistudio/sales-orchestrator/pkg/logger"
	"github.com/tekkistudio/sales-orchestrator/pkg/metrics"
)

// knowledgeConfidence is the minimum search score treated as a
// confident hit worth answering without generation.
const knowledgeConfidence = 1.0

// recentTurnWindow bounds how much history goes into the completion
// prompt.
const recentTurnWindow = 6

// Options carries the product facts and defaults the pipeline needs.
type Options struct {
	ProductName  string
	ProductPrice int64
	Currency     string
	DeliveryCost int64
}

// Orchestrator sequences the pipeline for each inbound message.
type Orchestrator struct {
	sessions  *session.Store
	carts     *cart.Service
	scorer    *intent.Scorer
	index     *knowledge.Index
	selector  *strategy.Selector
	generator *response.Generator
	publisher events.Publisher
	logger    *logger.Logger
	opts      Options

	mu    sync.Mutex
	locks map[string]*sessionLock
}

// sessionLock is a refcounted per-session mutex. The entry is removed
// from the lock map once the last holder releases it, so the map stays
// bounded by in-flight sessions rather than all sessions ever seen.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// New creates the orchestrator.
func New(
	sessions *session.Store,
	carts *cart.Service,
	scorer *intent.Scorer,
	index *knowledge.Index,
	selector *strategy.Selector,
	generator *response.Generator,
	publisher events.Publisher,
	opts Options,
	log *logger.Logger,
) *Orchestrator {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Orchestrator{
		sessions:  sessions,
		carts:     carts,
		scorer:    scorer,
		index:     index,
		selector:  selector,
		generator: generator,
		publisher: publisher,
		logger:    log,
		opts:      opts,
		locks:     make(map[string]*sessionLock),
	}
}

// Handle processes one customer message and returns the assistant's
// reply. Messages for the same session are serialized; different
// sessions run in parallel. Pipeline failures never reach the caller
// as raw faults: they become a recovery reply.
func (o *Orchestrator) Handle(ctx context.Context, sessionID, text, productID string) (*model.ChatResponse, error) {
	if text == "" {
		return nil, core.Validationf("message cannot be empty")
	}
	// Mint the ID before locking so anonymous first turns do not all
	// contend on one shared lock entry.
	if sessionID == "" {
		sessionID = uuid.Must(uuid.NewV7()).String()
	}

	unlock := o.lockSession(sessionID)
	defer unlock()

	sess, err := o.sessions.GetOrCreate(ctx, sessionID, productID)
	if err != nil {
		return nil, err
	}

	reply := o.processTurn(ctx, sess, text)

	assistantMsg := model.Message{
		Role:    model.RoleAssistant,
		Text:    reply.Text,
		Choices: reply.Choices,
		Meta: &model.MessageMeta{
			NextPhase:  reply.NextPhase,
			Technique:  reply.Technique,
			CartAction: reply.CartAction,
			Recovered:  reply.Technique == response.TechniqueRecovery,
		},
	}

	if reply.CartAction == model.CartActionAdd {
		o.triggerPurchase(ctx, sess, &assistantMsg)
	}
	if reply.Technique == response.TechniqueFallback {
		o.publisher.Publish(ctx, &model.SalesEvent{
			SessionID: sess.ID,
			Type:      model.EventTypeCompletionFailure,
			Reason:    "template_fallback",
		})
	}

	sess.CurrentPhase = reply.NextPhase
	o.sessions.Append(ctx, sess,
		model.Message{Role: model.RoleCustomer, Text: text},
		assistantMsg,
	)

	return &model.ChatResponse{
		SessionID: sess.ID,
		Text:      assistantMsg.Text,
		Choices:   assistantMsg.Choices,
		Phase:     sess.CurrentPhase,
		Meta:      assistantMsg.Meta,
	}, nil
}

// Initialize sends the welcome message for a brand-new session. The
// guard is idempotent and keyed by session ID: under the per-session
// lock a second initialization finds the flag set and returns the
// existing state without appending another welcome.
func (o *Orchestrator) Initialize(ctx context.Context, sessionID, productID string) (*model.ChatResponse, error) {
	if sessionID == "" {
		sessionID = uuid.Must(uuid.NewV7()).String()
	}

	unlock := o.lockSession(sessionID)
	defer unlock()

	sess, err := o.sessions.GetOrCreate(ctx, sessionID, productID)
	if err != nil {
		return nil, err
	}

	if sess.Metadata[model.MetaInitialized] == "true" {
		return &model.ChatResponse{
			SessionID: sess.ID,
			Phase:     sess.CurrentPhase,
		}, nil
	}
	sess.Metadata[model.MetaInitialized] = "true"

	reply := o.generator.Welcome(o.salesContext(sess, strategy.RiskLow, nil))
	welcome := model.Message{
		Role:    model.RoleAssistant,
		Text:    reply.Text,
		Choices: reply.Choices,
		Meta:    &model.MessageMeta{NextPhase: reply.NextPhase, Technique: reply.Technique},
	}
	sess.CurrentPhase = reply.NextPhase
	o.sessions.Append(ctx, sess, welcome)

	return &model.ChatResponse{
		SessionID: sess.ID,
		Text:      welcome.Text,
		Choices:   welcome.Choices,
		Phase:     sess.CurrentPhase,
		Meta:      welcome.Meta,
	}, nil
}

// Session returns a read-only snapshot of a session. The copy is taken
// under the per-session lock so readers never observe a turn half
// applied, and marshaling the result cannot race an in-flight Handle.
func (o *Orchestrator) Session(ctx context.Context, sessionID string) (*model.Session, error) {
	unlock := o.lockSession(sessionID)
	defer unlock()

	sess, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Clone(), nil
}

// Reset evicts a session, flushing it to the store first. The cart
// deliberately survives: a navigation reset must not empty it.
func (o *Orchestrator) Reset(ctx context.Context, sessionID string) {
	unlock := o.lockSession(sessionID)
	defer unlock()

	o.sessions.Evict(ctx, sessionID)
	o.publisher.Publish(ctx, &model.SalesEvent{
		SessionID: sessionID,
		Type:      model.EventTypeSessionEvicted,
	})
}

// processTurn runs score → knowledge → generate → classify. Panics
// are converted into the recovery reply at this boundary.
func (o *Orchestrator) processTurn(ctx context.Context, sess *model.Session, text string) (reply response.Reply) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("pipeline panic recovered",
				zap.String("session_id", sess.ID), zap.Any("panic", r))
			reply = o.generator.Recovery(sess.CurrentPhase)
		}
	}()

	now := time.Now()
	sess.Metadata[model.MetaInitialized] = "true"

	it := o.scorer.Score(text, sess.CustomerTexts(), model.IntentContext{
		MessageCount:   sess.CustomerMessageCount() + 1,
		SecondsElapsed: sess.SecondsElapsed(now),
		PreviousScore:  sess.LastIntentScore(),
	})
	metrics.IntentScores.Observe(float64(it.Score))

	m := strategy.BuildMetrics(sess, now)
	assessment := o.selector.Classify(text, m, it)

	// Knowledge lookup only below the closing band: high intent goes
	// straight to the deterministic close.
	var hit *model.ScoredItem
	if it.Score < 70 {
		if results := o.index.Search(ctx, text, ""); len(results) > 0 && results[0].Score >= knowledgeConfidence {
			hit = &results[0]
			hit.Item.Answer = knowledge.ExpandAnswer(hit.Item.Answer, o.productName(sess))
		}
	}

	sc := o.salesContext(sess, assessment.DropOffRisk, hit)
	sc.Suggestions = assessment.Suggestions
	reply = o.generator.Generate(ctx, text, assessment.Phase, it, sc)

	o.recordScores(sess, it.Score)
	return reply
}

// triggerPurchase mutates the cart and attaches the order fragment
// when a reply implies a purchase.
func (o *Orchestrator) triggerPurchase(ctx context.Context, sess *model.Session, msg *model.Message) {
	productID := sess.ProductID
	if productID == "" {
		return
	}

	price := o.productPrice(sess)
	summary, err := o.carts.AddItem(ctx, sess.ID, productID, o.productName(sess), 1, price)
	if err != nil {
		o.logger.Warn("cart mutation rejected",
			zap.String("session_id", sess.ID), zap.Error(err))
		return
	}

	msg.Meta.OrderFragment = &model.OrderFragment{
		ProductID: productID,
		Quantity:  1,
		UnitPrice: price,
	}
	metrics.PurchaseTriggers.Inc()

	o.publisher.Publish(ctx, &model.SalesEvent{
		SessionID: sess.ID,
		Type:      model.EventTypePurchaseTriggered,
		Metadata:  map[string]any{"product_id": productID, "total": summary.Total},
	})
	o.publisher.Publish(ctx, &model.SalesEvent{
		SessionID: sess.ID,
		Type:      model.EventTypeCartUpdated,
		Metadata:  map[string]any{"items": len(summary.Items), "total": summary.Total},
	})
}

func (o *Orchestrator) salesContext(sess *model.Session, risk strategy.DropOffRisk, hit *model.ScoredItem) response.SalesContext {
	var turns []llm.ChatMessage
	msgs := sess.Messages
	if len(msgs) > recentTurnWindow {
		msgs = msgs[len(msgs)-recentTurnWindow:]
	}
	for _, msg := range msgs {
		role := "user"
		if msg.Role == model.RoleAssistant {
			role = "assistant"
		}
		turns = append(turns, llm.ChatMessage{Role: role, Content: msg.Text})
	}

	return response.SalesContext{
		ProductName:  o.productName(sess),
		ProductID:    sess.ProductID,
		Price:        o.productPrice(sess),
		Currency:     o.opts.Currency,
		RecentTurns:  turns,
		DropOffRisk:  risk,
		KnowledgeHit: hit,
	}
}

func (o *Orchestrator) productName(sess *model.Session) string {
	if name := sess.Metadata[model.MetaProductName]; name != "" {
		return name
	}
	return o.opts.ProductName
}

func (o *Orchestrator) productPrice(sess *model.Session) int64 {
	if raw := sess.Metadata[model.MetaProductPrice]; raw != "" {
		if price, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return price
		}
	}
	return o.opts.ProductPrice
}

func (o *Orchestrator) recordScores(sess *model.Session, score int) {
	if last := sess.Metadata[model.MetaLastIntentScore]; last != "" {
		sess.Metadata[model.MetaPrevIntentScore] = last
	}
	sess.Metadata[model.MetaLastIntentScore] = strconv.Itoa(score)
}

// lockSession serializes handlers for one session while leaving other
// sessions fully parallel.
func (o *Orchestrator) lockSession(sessionID string) func() {
	o.mu.Lock()
	lock, ok := o.locks[sessionID]
	if !ok {
		lock = &sessionLock{}
		o.locks[sessionID] = lock
	}
	lock.refs++
	o.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		o.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(o.locks, sessionID)
		}
		o.mu.Unlock()
	}
}
