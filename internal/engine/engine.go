// Package engine runs the quote flow: it resolves parameters from the
// request and the config store, serves cached quotes, prices misses, and
// keeps the cache consistent when event multipliers change.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atmx/urgency-engine/internal/apperr"
	"github.com/atmx/urgency-engine/internal/demand"
	"github.com/atmx/urgency-engine/internal/metrics"
	"github.com/atmx/urgency-engine/internal/model"
	"github.com/atmx/urgency-engine/internal/pricing"
	"github.com/atmx/urgency-engine/internal/store"
	"github.com/atmx/urgency-engine/internal/timeutil"
)

// ServiceName is reported by Health.
const ServiceName = "urgency-pricing-engine"

// Notification types emitted to the Publisher.
const (
	NotifyQuoteComputed    = "quote_computed"
	NotifyEventAdded       = "event_added"
	NotifyEventRemoved     = "event_removed"
	NotifyCacheInvalidated = "cache_invalidated"
)

// Notification is a change announcement for live subscribers.
type Notification struct {
	Type         string `json:"type"`
	TargetDate   string `json:"targetDate,omitempty"`
	CacheKey     string `json:"cacheKey,omitempty"`
	CurrentPrice string `json:"currentPrice,omitempty"`
	UrgencyLevel string `json:"urgencyLevel,omitempty"`
	EventID      string `json:"eventId,omitempty"`
	StartDate    string `json:"startDate,omitempty"`
	EndDate      string `json:"endDate,omitempty"`
	Invalidated  int64  `json:"invalidated,omitempty"`
}

// Publisher receives notifications. Publish must not block.
type Publisher interface {
	Publish(Notification)
}

// Options configures an Engine. Zero values select the defaults.
type Options struct {
	ConfigKey string
	Profile   string
	City      string
	Publisher Publisher
	Now       func() time.Time
}

// Engine is safe for concurrent use; it holds no per-request state.
type Engine struct {
	store   store.Store
	loader  *ConfigLoader
	cache   *QuoteCache
	profile string
	city    string
	pub     Publisher
	now     func() time.Time
}

// New creates an engine over st.
func New(st store.Store, opts Options) *Engine {
	e := &Engine{
		store:   st,
		loader:  NewConfigLoader(st, opts.ConfigKey),
		cache:   NewQuoteCache(st),
		profile: opts.Profile,
		city:    opts.City,
		pub:     opts.Publisher,
		now:     opts.Now,
	}
	if e.profile == "" {
		e.profile = DefaultProfile
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Loader exposes the engine's config loader.
func (e *Engine) Loader() *ConfigLoader { return e.loader }

// --- Quotes ---

// QuoteRequest is the calculate payload.
type QuoteRequest struct {
	TargetDate             string          `json:"targetDate"`
	BasePrice              decimal.Decimal `json:"basePrice"`
	UrgencySteepness       *float64        `json:"urgencySteepness,omitempty"`
	MarketDemandMultiplier *float64        `json:"marketDemandMultiplier,omitempty"`
	IncludeProjections     *bool           `json:"includeProjections,omitempty"`
	City                   string          `json:"city,omitempty"`
	Profile                string          `json:"profile,omitempty"`
}

// Quote is a priced night plus lookup metadata.
type Quote struct {
	*model.UrgencyPricing
	CacheHit          bool    `json:"cacheHit"`
	CalculationTimeMs float64 `json:"calculationTimeMs"`
}

// validate checks the payload shape and returns the parsed target day.
func (r *QuoteRequest) validate() (time.Time, error) {
	if strings.TrimSpace(r.TargetDate) == "" {
		return time.Time{}, apperr.Validation("targetDate is required")
	}
	target, err := timeutil.ParseDate(r.TargetDate)
	if err != nil {
		return time.Time{}, apperr.Validation("targetDate %q is not an ISO date", r.TargetDate)
	}
	if !r.BasePrice.IsPositive() {
		return time.Time{}, apperr.Validation("basePrice must be positive, got %s", r.BasePrice)
	}
	if r.UrgencySteepness != nil && !positive(*r.UrgencySteepness) {
		return time.Time{}, apperr.Validation("urgencySteepness must be positive, got %v", *r.UrgencySteepness)
	}
	if r.MarketDemandMultiplier != nil && !positive(roundMarket(*r.MarketDemandMultiplier)) {
		return time.Time{}, apperr.Validation("marketDemandMultiplier must be at least 0.01, got %v", *r.MarketDemandMultiplier)
	}
	return target, nil
}

// DecodeQuoteRequest parses one JSON quote request. Type errors are
// reported as validation errors.
func DecodeQuoteRequest(raw json.RawMessage) (QuoteRequest, error) {
	var req QuoteRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return QuoteRequest{}, apperr.Validation("invalid quote request: %v", err)
	}
	return req, nil
}

// roundMarket rounds a market multiplier to the two decimals used for
// keying and pricing.
func roundMarket(m float64) float64 {
	return math.Round(m*100) / 100
}

// Calculate returns a quote for req, from the cache when a live entry
// exists. If the fresh quote cannot be cached, both the quote and an
// apperr.ErrStorage error are returned.
func (e *Engine) Calculate(ctx context.Context, req QuoteRequest) (*Quote, error) {
	start := time.Now()

	target, err := req.validate()
	if err != nil {
		return nil, err
	}
	now := e.now().UTC()
	if timeutil.DaysBetween(now, target) < 0 {
		return nil, apperr.Validation("targetDate %s is in the past", timeutil.FormatDate(target))
	}

	// Resolve every parameter before keying so the key names the quote.
	pc := e.loader.PricingConfig(ctx)
	steepness := pc.Steepness
	if req.UrgencySteepness != nil {
		steepness = *req.UrgencySteepness
	}
	var market float64
	if req.MarketDemandMultiplier != nil {
		market = *req.MarketDemandMultiplier
	} else {
		market = e.marketMultiplier(ctx, target, req.Profile, req.City)
	}
	market = roundMarket(market)

	key := pricing.GenerateCacheKey(target, req.BasePrice, steepness, market)
	includeProjections := req.IncludeProjections == nil || *req.IncludeProjections

	if cached, ok := e.cache.Get(ctx, key, now); ok {
		elapsed := time.Since(start)
		metrics.QuotesTotal.WithLabelValues(string(cached.UrgencyLevel), "cache").Inc()
		metrics.CalculationLatency.WithLabelValues("cache").Observe(elapsed.Seconds())
		return newQuote(cached, includeProjections, true, elapsed), nil
	}

	uc := pricing.NewContext(target, now, req.BasePrice, steepness, market, pc.LookbackWindow)
	p, err := pricing.Calculate(uc)
	if err != nil {
		return nil, err
	}
	p.CacheKey = key

	err = e.cache.Put(ctx, key, p)
	elapsed := time.Since(start)
	metrics.QuotesTotal.WithLabelValues(string(p.UrgencyLevel), "computed").Inc()
	metrics.CalculationLatency.WithLabelValues("computed").Observe(elapsed.Seconds())

	q := newQuote(p, includeProjections, false, elapsed)
	if err != nil {
		return q, err
	}

	e.publish(Notification{
		Type:         NotifyQuoteComputed,
		TargetDate:   p.TargetDate,
		CacheKey:     key,
		CurrentPrice: p.CurrentPrice.String(),
		UrgencyLevel: string(p.UrgencyLevel),
	})
	return q, nil
}

func newQuote(p *model.UrgencyPricing, includeProjections, hit bool, elapsed time.Duration) *Quote {
	if !includeProjections {
		c := *p
		c.Projections = []model.PriceProjection{}
		p = &c
	}
	return &Quote{
		UrgencyPricing:    p,
		CacheHit:          hit,
		CalculationTimeMs: float64(elapsed.Microseconds()) / 1000,
	}
}

// marketMultiplier combines the profile's demand tables with the active
// events covering target.
func (e *Engine) marketMultiplier(ctx context.Context, target time.Time, profile, city string) float64 {
	if profile == "" {
		profile = e.profile
	}
	if city == "" {
		city = e.city
	}
	cfg := e.loader.DemandConfig(ctx, profile)
	events := e.loader.ActiveEvents(ctx, target, target, city)
	return demand.Multiplier(target, cfg, events, city)
}

// --- Batch ---

// Batch limits.
const (
	MaxBatchItems    = 100
	MaxCalendarDates = 366
)

// BatchItem is one slot of a batch response, positionally matching the
// request slot.
type BatchItem struct {
	Index   int    `json:"index"`
	Success bool   `json:"success"`
	Data    *Quote `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

// BatchResult aggregates a batch.
type BatchResult struct {
	BatchID     string      `json:"batchId"`
	Results     []BatchItem `json:"results"`
	Total       int         `json:"total"`
	Successful  int         `json:"successful"`
	Failed      int         `json:"failed"`
	TotalTimeMs float64     `json:"totalTimeMs"`
}

type outcome struct {
	quote *Quote
	err   error
}

// Batch prices every item concurrently. Items are decoded inside their
// own slot, so a malformed item fails alone and never affects the others.
func (e *Engine) Batch(ctx context.Context, items []json.RawMessage) (*BatchResult, error) {
	if len(items) == 0 || len(items) > MaxBatchItems {
		return nil, apperr.Validation("requests must contain 1-%d items, got %d", MaxBatchItems, len(items))
	}
	start := time.Now()
	metrics.BatchSize.WithLabelValues("batch").Observe(float64(len(items)))

	outcomes := e.fanOut(ctx, len(items), func(i int) (QuoteRequest, error) {
		return DecodeQuoteRequest(items[i])
	})

	res := &BatchResult{
		BatchID: uuid.New().String(),
		Results: make([]BatchItem, len(items)),
		Total:   len(items),
	}
	for i, o := range outcomes {
		item := BatchItem{Index: i, Data: o.quote}
		if o.err != nil {
			item.Error = o.err.Error()
			item.Code = apperr.Code(o.err)
			res.Failed++
		} else {
			item.Success = true
			res.Successful++
		}
		res.Results[i] = item
	}
	metrics.BatchItemFailures.WithLabelValues("batch").Add(float64(res.Failed))
	res.TotalTimeMs = float64(time.Since(start).Microseconds()) / 1000
	return res, nil
}

// fanOut runs Calculate for the n requests produced by reqAt and waits for
// all of them. A reqAt error becomes that slot's outcome.
func (e *Engine) fanOut(ctx context.Context, n int, reqAt func(i int) (QuoteRequest, error)) []outcome {
	outcomes := make([]outcome, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req, err := reqAt(i)
			if err != nil {
				outcomes[i] = outcome{err: err}
				return
			}
			q, err := e.Calculate(ctx, req)
			outcomes[i] = outcome{quote: q, err: err}
		}(i)
	}
	wg.Wait()
	return outcomes
}

// --- Calendar ---

// CalendarRequest prices one base price across many dates.
type CalendarRequest struct {
	BasePrice              decimal.Decimal `json:"basePrice"`
	Dates                  []string        `json:"dates"`
	Steepness              *float64        `json:"steepness,omitempty"`
	MarketDemandMultiplier *float64        `json:"marketDemandMultiplier,omitempty"`
	IncludeProjections     *bool           `json:"includeProjections,omitempty"`
	City                   string          `json:"city,omitempty"`
	Profile                string          `json:"profile,omitempty"`
}

// CalendarResult maps YYYY-MM-DD to its quote. Dates that failed to
// price are absent from Calendar.
type CalendarResult struct {
	Calendar  map[string]*model.UrgencyPricing `json:"calendar"`
	Requested int                              `json:"requested"`
	Priced    int                              `json:"priced"`
}

// Calendar prices req.BasePrice for each date concurrently.
func (e *Engine) Calendar(ctx context.Context, req CalendarRequest) (*CalendarResult, error) {
	if len(req.Dates) == 0 || len(req.Dates) > MaxCalendarDates {
		return nil, apperr.Validation("dates must contain 1-%d entries, got %d", MaxCalendarDates, len(req.Dates))
	}
	if !req.BasePrice.IsPositive() {
		return nil, apperr.Validation("basePrice must be positive, got %s", req.BasePrice)
	}
	if req.Steepness != nil && !positive(*req.Steepness) {
		return nil, apperr.Validation("steepness must be positive, got %v", *req.Steepness)
	}
	metrics.BatchSize.WithLabelValues("calendar").Observe(float64(len(req.Dates)))

	reqs := make([]QuoteRequest, len(req.Dates))
	for i, date := range req.Dates {
		reqs[i] = QuoteRequest{
			TargetDate:             date,
			BasePrice:              req.BasePrice,
			UrgencySteepness:       req.Steepness,
			MarketDemandMultiplier: req.MarketDemandMultiplier,
			IncludeProjections:     req.IncludeProjections,
			City:                   req.City,
			Profile:                req.Profile,
		}
	}

	res := &CalendarResult{
		Calendar:  make(map[string]*model.UrgencyPricing, len(reqs)),
		Requested: len(reqs),
	}
	failed := 0
	outcomes := e.fanOut(ctx, len(reqs), func(i int) (QuoteRequest, error) {
		return reqs[i], nil
	})
	for i, o := range outcomes {
		if o.err != nil {
			failed++
			slog.Debug("calendar date skipped", "date", req.Dates[i], "err", o.err)
			continue
		}
		res.Calendar[o.quote.TargetDate] = o.quote.UrgencyPricing
	}
	res.Priced = len(res.Calendar)
	metrics.BatchItemFailures.WithLabelValues("calendar").Add(float64(failed))
	return res, nil
}

// --- Events ---

// AddEventRequest is the add_event payload.
type AddEventRequest struct {
	EventName  string   `json:"eventName"`
	StartDate  string   `json:"startDate"`
	EndDate    string   `json:"endDate"`
	Multiplier float64  `json:"multiplier"`
	Cities     []string `json:"cities"`
}

// ListEventsRequest is the list_events payload. All fields are optional.
type ListEventsRequest struct {
	StartDate       string `json:"startDate,omitempty"`
	EndDate         string `json:"endDate,omitempty"`
	City            string `json:"city,omitempty"`
	IncludeInactive bool   `json:"includeInactive,omitempty"`
}

// EventResult is returned by event mutations.
type EventResult struct {
	Event             *model.EventMultiplier `json:"event"`
	InvalidatedQuotes int64                  `json:"invalidatedQuotes"`
}

// AddEvent stores a new event multiplier and drops cached quotes it
// affects. If the event is stored but the invalidation fails, the result
// is returned together with the apperr.ErrStorage error.
func (e *Engine) AddEvent(ctx context.Context, req AddEventRequest) (*EventResult, error) {
	name := strings.TrimSpace(req.EventName)
	if name == "" {
		return nil, apperr.Validation("eventName is required")
	}
	start, err := timeutil.ParseDate(req.StartDate)
	if err != nil {
		return nil, apperr.Validation("startDate %q is not an ISO date", req.StartDate)
	}
	end, err := timeutil.ParseDate(req.EndDate)
	if err != nil {
		return nil, apperr.Validation("endDate %q is not an ISO date", req.EndDate)
	}
	if end.Before(start) {
		return nil, apperr.Validation("endDate %s precedes startDate %s", req.EndDate, req.StartDate)
	}
	if !(req.Multiplier >= 1) || math.IsInf(req.Multiplier, 0) {
		return nil, apperr.Validation("multiplier must be at least 1.0, got %v", req.Multiplier)
	}

	cities := make([]string, 0, len(req.Cities))
	for _, c := range req.Cities {
		if c = strings.TrimSpace(c); c != "" {
			cities = append(cities, c)
		}
	}

	now := e.now().UTC()
	ev := &model.EventMultiplier{
		ID:          uuid.New().String(),
		Name:        name,
		StartDate:   start,
		EndDate:     end,
		Multiplier:  req.Multiplier,
		Cities:      cities,
		ImpactLevel: demand.ImpactLevel(req.Multiplier),
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.store.InsertEvent(ctx, ev); err != nil {
		return nil, apperr.Storage("insert event", err)
	}
	metrics.EventChanges.WithLabelValues("add").Inc()

	n, err := e.cache.InvalidateRange(ctx, start, end)
	if err != nil {
		slog.Error("event stored but cache not invalidated", "id", ev.ID, "err", err)
		return &EventResult{Event: ev}, err
	}

	slog.Info("event added",
		"id", ev.ID,
		"name", ev.Name,
		"start", timeutil.FormatDate(start),
		"end", timeutil.FormatDate(end),
		"multiplier", ev.Multiplier,
		"impact", ev.ImpactLevel,
		"invalidated", n,
	)
	e.publishEventChange(NotifyEventAdded, ev, n)
	return &EventResult{Event: ev, InvalidatedQuotes: n}, nil
}

// RemoveEvent marks an event inactive and drops cached quotes it affected.
// Like AddEvent, an invalidation failure returns the result with the error.
func (e *Engine) RemoveEvent(ctx context.Context, id string) (*EventResult, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperr.Validation("eventId is required")
	}
	ev, err := e.store.GetEvent(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Validation("event %s not found", id)
	}
	if err != nil {
		return nil, apperr.Storage("get event", err)
	}

	now := e.now().UTC()
	if err := e.store.DeactivateEvent(ctx, id, now); err != nil {
		return nil, apperr.Storage("deactivate event", err)
	}
	ev.Active = false
	ev.UpdatedAt = now
	metrics.EventChanges.WithLabelValues("remove").Inc()

	n, err := e.cache.InvalidateRange(ctx, ev.StartDate, ev.EndDate)
	if err != nil {
		slog.Error("event deactivated but cache not invalidated", "id", id, "err", err)
		return &EventResult{Event: ev}, err
	}

	slog.Info("event removed", "id", id, "name", ev.Name, "invalidated", n)
	e.publishEventChange(NotifyEventRemoved, ev, n)
	return &EventResult{Event: ev, InvalidatedQuotes: n}, nil
}

// ListEvents returns events matching req, ordered by start date.
func (e *Engine) ListEvents(ctx context.Context, req ListEventsRequest) ([]model.EventMultiplier, error) {
	var f model.EventFilter
	var err error
	if req.StartDate != "" {
		if f.Start, err = timeutil.ParseDate(req.StartDate); err != nil {
			return nil, apperr.Validation("startDate %q is not an ISO date", req.StartDate)
		}
	}
	if req.EndDate != "" {
		if f.End, err = timeutil.ParseDate(req.EndDate); err != nil {
			return nil, apperr.Validation("endDate %q is not an ISO date", req.EndDate)
		}
	}
	f.City = strings.TrimSpace(req.City)
	f.IncludeInactive = req.IncludeInactive

	events, err := e.store.ListEvents(ctx, f)
	if err != nil {
		return nil, apperr.Storage("list events", err)
	}
	if events == nil {
		events = []model.EventMultiplier{}
	}
	return events, nil
}

// --- Stats & health ---

// StatsResult reports live cache entries.
type StatsResult struct {
	Cache     model.CacheStats `json:"cache"`
	Timestamp time.Time        `json:"timestamp"`
}

// Stats counts live cached quotes per urgency level.
func (e *Engine) Stats(ctx context.Context) StatsResult {
	now := e.now().UTC()
	return StatsResult{Cache: e.cache.Stats(ctx, now), Timestamp: now}
}

// HealthResult is the health payload. Status stays "healthy" when only the
// store is unreachable; Store reports "degraded" in that case.
type HealthResult struct {
	Status    string    `json:"status"`
	Service   string    `json:"service"`
	Timestamp time.Time `json:"timestamp"`
	Store     string    `json:"store"`
}

// Health pings the store.
func (e *Engine) Health(ctx context.Context) HealthResult {
	res := HealthResult{
		Status:    "healthy",
		Service:   ServiceName,
		Timestamp: e.now().UTC(),
		Store:     "ok",
	}
	if err := e.store.Ping(ctx); err != nil {
		slog.Warn("store ping failed", "err", err)
		res.Store = "degraded"
	}
	return res
}

// --- helpers ---

func (e *Engine) publish(n Notification) {
	if e.pub != nil {
		e.pub.Publish(n)
	}
}

func (e *Engine) publishEventChange(typ string, ev *model.EventMultiplier, invalidated int64) {
	e.publish(Notification{
		Type:        typ,
		EventID:     ev.ID,
		StartDate:   timeutil.FormatDate(ev.StartDate),
		EndDate:     timeutil.FormatDate(ev.EndDate),
		Invalidated: invalidated,
	})
	if invalidated > 0 {
		e.publish(Notification{
			Type:        NotifyCacheInvalidated,
			StartDate:   timeutil.FormatDate(ev.StartDate),
			EndDate:     timeutil.FormatDate(ev.EndDate),
			Invalidated: invalidated,
		})
	}
}

func positive(f float64) bool {
	return f > 0 && !math.IsInf(f, 0)
}
