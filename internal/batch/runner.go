// Package batch runs the daily notification passes: birthday, membership
// anniversary, then tier change, in that order. Passes are independent and
// per-customer failures never abort a run.
package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/karvy-labs/loyaltypulse/internal/db"
	"github.com/karvy-labs/loyaltypulse/internal/events"
	"github.com/karvy-labs/loyaltypulse/internal/loyalty"
	"github.com/karvy-labs/loyaltypulse/internal/membership"
	"github.com/karvy-labs/loyaltypulse/internal/metrics"
	"github.com/karvy-labs/loyaltypulse/internal/rules"
)

// Pass names, used in logs, metrics and the run summary.
const (
	PassBirthday    = "birthday"
	PassAnniversary = "anniversary"
	PassTierChange  = "tier_change"
)

// CustomerSource supplies the candidate customer sets for the calendar
// passes. monthDay is "MM-DD".
type CustomerSource interface {
	BirthdayCandidates(ctx context.Context, monthDay string) ([]*db.Customer, error)
	AnniversaryCandidates(ctx context.Context, monthDay string) ([]*db.Customer, error)
}

// SpendSource supplies the tier-change pass inputs and applies the cached
// tier update after a transition.
type SpendSource interface {
	TierChangeCandidates(ctx context.Context, currentDate, previousDate time.Time) ([]*db.TierChangeCandidate, error)
	ProgramThresholds(ctx context.Context, programID string) ([]loyalty.TierThreshold, error)
	UpdateCustomerTier(ctx context.Context, customerID, tier string) error
}

// Dispatcher sends one notification; implemented by dispatch.Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, customer *db.Customer, eventType string, tierOverride string) *db.NotificationRecord
}

// AuditSink appends the extra tier-change audit rows the runner writes
// alongside dispatch records.
type AuditSink interface {
	AppendNotificationRecord(ctx context.Context, rec *db.NotificationRecord) error
}

// MembershipSync pushes customer changes to the wallet provider.
// Implemented by membership.Client; nil disables the sync.
type MembershipSync interface {
	Enroll(ctx context.Context, customer *db.Customer) (*membership.Result, error)
	Update(ctx context.Context, customer *db.Customer) (*membership.Result, error)
}

// EventPublisher emits tier-change events for downstream consumers.
// Implemented by events.Publisher; nil disables publishing.
type EventPublisher interface {
	PublishTierChange(ctx context.Context, ev events.TierChangeEvent) (string, error)
}

// Config holds runner settings.
type Config struct {
	// Workers bounds per-pass parallelism. Customers are independent units
	// of work; 1 means strictly sequential.
	Workers int
}

// PassSummary counts one pass's outcomes.
type PassSummary struct {
	Candidates int
	Sent       int
	Failed     int
	Skipped    int
}

// Summary is the result of one full run.
type Summary struct {
	Date        time.Time
	Birthday    PassSummary
	Anniversary PassSummary
	TierChange  PassSummary
	Upgrades    int
	Downgrades  int
}

// Runner executes the daily batch.
type Runner struct {
	customers  CustomerSource
	spend      SpendSource
	dispatcher Dispatcher
	audit      AuditSink
	membership MembershipSync
	publisher  EventPublisher
	config     Config
	logger     *zap.Logger
}

// New creates a runner. membership and publisher may be nil.
func New(customers CustomerSource, spend SpendSource, dispatcher Dispatcher, audit AuditSink, cfg Config, logger *zap.Logger) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}

	return &Runner{
		customers:  customers,
		spend:      spend,
		dispatcher: dispatcher,
		audit:      audit,
		config:     cfg,
		logger:     logger,
	}
}

// WithMembership attaches the wallet provider sync.
func (r *Runner) WithMembership(m MembershipSync) *Runner {
	r.membership = m
	return r
}

// WithPublisher attaches the tier-change event publisher.
func (r *Runner) WithPublisher(p EventPublisher) *Runner {
	r.publisher = p
	return r
}

// Run executes the three passes for the given reference date, strictly in
// order. A failed pass is logged and the next pass still runs. Cancelling
// ctx aborts remaining customers without rolling back records already
// written; the dedup guard makes the next run skip what was completed.
func (r *Runner) Run(ctx context.Context, refDate time.Time) *Summary {
	summary := &Summary{Date: refDate}
	monthDay := refDate.Format("01-02")

	r.logger.Info("batch run starting",
		zap.String("date", refDate.Format("2006-01-02")),
		zap.Int("workers", r.config.Workers),
	)

	r.birthdayPass(ctx, monthDay, summary)
	r.anniversaryPass(ctx, monthDay, summary)
	r.tierChangePass(ctx, refDate, summary)

	r.logger.Info("batch run complete",
		zap.Int("birthday_sent", summary.Birthday.Sent),
		zap.Int("anniversary_sent", summary.Anniversary.Sent),
		zap.Int("tier_change_sent", summary.TierChange.Sent),
		zap.Int("upgrades", summary.Upgrades),
		zap.Int("downgrades", summary.Downgrades),
	)

	return summary
}

func (r *Runner) birthdayPass(ctx context.Context, monthDay string, summary *Summary) {
	start := time.Now()
	defer func() { metrics.RecordPassDuration(PassBirthday, time.Since(start)) }()

	candidates, err := r.customers.BirthdayCandidates(ctx, monthDay)
	if err != nil {
		r.logger.Error("birthday candidate query failed, pass skipped", zap.Error(err))
		return
	}

	summary.Birthday.Candidates = len(candidates)
	var mu sync.Mutex
	r.forEach(ctx, PassBirthday, candidates, func(ctx context.Context, customer *db.Customer) {
		rec := r.dispatchSafely(ctx, PassBirthday, customer, rules.EventBirthday, "")
		mu.Lock()
		tally(&summary.Birthday, rec)
		mu.Unlock()
	})
}

func (r *Runner) anniversaryPass(ctx context.Context, monthDay string, summary *Summary) {
	start := time.Now()
	defer func() { metrics.RecordPassDuration(PassAnniversary, time.Since(start)) }()

	candidates, err := r.customers.AnniversaryCandidates(ctx, monthDay)
	if err != nil {
		r.logger.Error("anniversary candidate query failed, pass skipped", zap.Error(err))
		return
	}

	summary.Anniversary.Candidates = len(candidates)
	var mu sync.Mutex
	r.forEach(ctx, PassAnniversary, candidates, func(ctx context.Context, customer *db.Customer) {
		rec := r.dispatchSafely(ctx, PassAnniversary, customer, rules.EventAnniversary, "")
		mu.Lock()
		tally(&summary.Anniversary, rec)
		mu.Unlock()
	})
}

func (r *Runner) tierChangePass(ctx context.Context, refDate time.Time, summary *Summary) {
	start := time.Now()
	defer func() { metrics.RecordPassDuration(PassTierChange, time.Since(start)) }()

	// Spend windows: totals as of yesterday vs. the day before, so the pass
	// reacts to yesterday's purchases exactly once.
	yesterday := refDate.AddDate(0, 0, -1)
	dayBefore := refDate.AddDate(0, 0, -2)

	candidates, err := r.spend.TierChangeCandidates(ctx, yesterday, dayBefore)
	if err != nil {
		r.logger.Error("tier change candidate query failed, pass skipped", zap.Error(err))
		return
	}

	summary.TierChange.Candidates = len(candidates)

	// Ladders are immutable for the run; load each program's once.
	ladders := make(map[string][]loyalty.TierThreshold)
	var laddersMu sync.Mutex
	thresholdsFor := func(programID string) ([]loyalty.TierThreshold, error) {
		laddersMu.Lock()
		defer laddersMu.Unlock()
		if ladder, ok := ladders[programID]; ok {
			return ladder, nil
		}
		ladder, err := r.spend.ProgramThresholds(ctx, programID)
		if err != nil {
			return nil, err
		}
		ladders[programID] = ladder
		return ladder, nil
	}

	var summaryMu sync.Mutex

	r.forEachCandidate(ctx, candidates, func(ctx context.Context, tc *db.TierChangeCandidate) {
		ladder, err := thresholdsFor(tc.Customer.LoyaltyProgramID)
		if err != nil {
			r.logger.Error("threshold load failed, customer skipped",
				zap.Error(err),
				zap.String("customer_id", tc.Customer.ID),
				zap.String("program_id", tc.Customer.LoyaltyProgramID),
			)
			summaryMu.Lock()
			summary.TierChange.Failed++
			summaryMu.Unlock()
			return
		}

		transition, err := loyalty.DetectTransition(tc.Totals.PreviousTotal, tc.Totals.CurrentTotal, ladder)
		if err != nil {
			// Malformed spend or ladder data is fatal to this customer's
			// classification only.
			r.logger.Error("transition detection failed",
				zap.Error(err),
				zap.String("customer_id", tc.Customer.ID),
			)
			r.appendAudit(ctx, &db.NotificationRecord{
				CustomerID:       tc.Customer.ID,
				EventType:        rules.EventLoyaltyUpgrade,
				Outcome:          db.OutcomeFailed,
				Message:          err.Error(),
				LoyaltyProgramID: tc.Customer.LoyaltyProgramID,
			})
			summaryMu.Lock()
			summary.TierChange.Failed++
			summaryMu.Unlock()
			return
		}

		if !transition.Changed {
			summaryMu.Lock()
			summary.TierChange.Skipped++
			summaryMu.Unlock()
			return
		}

		metrics.RecordTierTransition(transition.Direction.String())
		r.logger.Info("tier transition detected",
			zap.String("customer_id", tc.Customer.ID),
			zap.String("previous_tier", transition.PreviousTier),
			zap.String("new_tier", transition.NewTier),
			zap.String("direction", transition.Direction.String()),
		)

		summaryMu.Lock()
		if transition.Direction == loyalty.DirectionUpgrade {
			summary.Upgrades++
		} else {
			summary.Downgrades++
		}
		summaryMu.Unlock()

		r.recordTransition(ctx, tc, transition)

		// Only upgrades notify; downgrades are recorded silently.
		if transition.Direction != loyalty.DirectionUpgrade {
			summaryMu.Lock()
			summary.TierChange.Skipped++
			summaryMu.Unlock()
			return
		}

		rec := r.dispatchSafely(ctx, PassTierChange, &tc.Customer, rules.EventLoyaltyUpgrade, transition.NewTier)
		summaryMu.Lock()
		tally(&summary.TierChange, rec)
		summaryMu.Unlock()

		r.syncAfterUpgrade(ctx, tc, transition)
	})
}

// recordTransition updates the cached tier and appends the transition audit
// row. Both are best effort; failure of either does not stop the dispatch.
func (r *Runner) recordTransition(ctx context.Context, tc *db.TierChangeCandidate, transition loyalty.Transition) {
	if err := r.spend.UpdateCustomerTier(ctx, tc.Customer.ID, transition.NewTier); err != nil {
		r.logger.Error("failed to update cached tier",
			zap.Error(err),
			zap.String("customer_id", tc.Customer.ID),
		)
	}

	r.appendAudit(ctx, &db.NotificationRecord{
		CustomerID:       tc.Customer.ID,
		EventType:        "tier_change",
		Outcome:          db.OutcomeSuccess,
		Message:          fmt.Sprintf("Tier changed from %s to %s", transition.PreviousTier, transition.NewTier),
		LoyaltyProgramID: tc.Customer.LoyaltyProgramID,
		LoyaltyTier:      transition.NewTier,
	})
}

// syncAfterUpgrade pushes the upgrade to the wallet provider and the event
// queue. Both integrations are optional and best effort.
func (r *Runner) syncAfterUpgrade(ctx context.Context, tc *db.TierChangeCandidate, transition loyalty.Transition) {
	if r.membership != nil {
		if _, err := r.membership.Update(ctx, &tc.Customer); err != nil {
			r.logger.Warn("membership sync failed after upgrade",
				zap.Error(err),
				zap.String("customer_id", tc.Customer.ID),
			)
		}
	}

	if r.publisher != nil {
		ev := events.TierChangeEvent{
			CustomerID:       tc.Customer.ID,
			LoyaltyProgramID: tc.Customer.LoyaltyProgramID,
			PreviousTier:     transition.PreviousTier,
			NewTier:          transition.NewTier,
			Direction:        transition.Direction.String(),
			PreviousTotal:    tc.Totals.PreviousTotal,
			CurrentTotal:     tc.Totals.CurrentTotal,
		}
		if _, err := r.publisher.PublishTierChange(ctx, ev); err != nil {
			r.logger.Warn("tier change event publish failed",
				zap.Error(err),
				zap.String("customer_id", tc.Customer.ID),
			)
		}
	}
}

// OnCustomerCreate handles a new registration: welcome notification plus
// wallet enrollment. Called from the registration webhook/CLI, not from the
// daily passes.
func (r *Runner) OnCustomerCreate(ctx context.Context, customer *db.Customer) *db.NotificationRecord {
	rec := r.dispatchSafely(ctx, "registration", customer, rules.EventNewRegistration, "")

	if r.membership != nil && customer.HasContact() {
		if _, err := r.membership.Enroll(ctx, customer); err != nil {
			r.logger.Warn("membership enrollment failed",
				zap.Error(err),
				zap.String("customer_id", customer.ID),
			)
		}
	}

	return rec
}

// dispatchSafely isolates one customer's dispatch: a panic from malformed
// data is recovered and recorded so the rest of the pass continues.
func (r *Runner) dispatchSafely(ctx context.Context, pass string, customer *db.Customer, eventType, tierOverride string) (rec *db.NotificationRecord) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("dispatch panicked, customer skipped",
				zap.Any("panic", p),
				zap.String("pass", pass),
				zap.String("customer_id", customer.ID),
			)
			rec = &db.NotificationRecord{
				CustomerID: customer.ID,
				EventType:  rules.NormalizeEventType(eventType),
				Outcome:    db.OutcomeFailed,
				Message:    fmt.Sprintf("panic: %v", p),
			}
			r.appendAudit(ctx, rec)
		}
	}()

	return r.dispatcher.Dispatch(ctx, customer, eventType, tierOverride)
}

func (r *Runner) appendAudit(ctx context.Context, rec *db.NotificationRecord) {
	if err := r.audit.AppendNotificationRecord(ctx, rec); err != nil {
		r.logger.Error("failed to append audit record",
			zap.Error(err),
			zap.String("customer_id", rec.CustomerID),
		)
	}
}

// forEach fans customers out over the worker pool. With Workers == 1 it is
// a plain sequential loop. Stops handing out work once ctx is cancelled.
func (r *Runner) forEach(ctx context.Context, pass string, customers []*db.Customer, fn func(context.Context, *db.Customer)) {
	if r.config.Workers == 1 {
		for _, c := range customers {
			if ctx.Err() != nil {
				r.logger.Warn("pass aborted by cancellation", zap.String("pass", pass))
				return
			}
			metrics.RecordCustomerProcessed(pass)
			fn(ctx, c)
		}
		return
	}

	work := make(chan *db.Customer)
	var wg sync.WaitGroup

	for i := 0; i < r.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range work {
				metrics.RecordCustomerProcessed(pass)
				fn(ctx, c)
			}
		}()
	}

	for _, c := range customers {
		if ctx.Err() != nil {
			r.logger.Warn("pass aborted by cancellation", zap.String("pass", pass))
			break
		}
		work <- c
	}
	close(work)
	wg.Wait()
}

// forEachCandidate is forEach for tier-change candidates.
func (r *Runner) forEachCandidate(ctx context.Context, candidates []*db.TierChangeCandidate, fn func(context.Context, *db.TierChangeCandidate)) {
	if r.config.Workers == 1 {
		for _, tc := range candidates {
			if ctx.Err() != nil {
				r.logger.Warn("pass aborted by cancellation", zap.String("pass", PassTierChange))
				return
			}
			metrics.RecordCustomerProcessed(PassTierChange)
			fn(ctx, tc)
		}
		return
	}

	work := make(chan *db.TierChangeCandidate)
	var wg sync.WaitGroup

	for i := 0; i < r.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for tc := range work {
				metrics.RecordCustomerProcessed(PassTierChange)
				fn(ctx, tc)
			}
		}()
	}

	for _, tc := range candidates {
		if ctx.Err() != nil {
			r.logger.Warn("pass aborted by cancellation", zap.String("pass", PassTierChange))
			break
		}
		work <- tc
	}
	close(work)
	wg.Wait()
}

// tally folds one dispatch result into a pass summary. A nil record means
// the dedup guard skipped the customer.
func tally(s *PassSummary, rec *db.NotificationRecord) {
	switch {
	case rec == nil:
		s.Skipped++
	case rec.Outcome == db.OutcomeSuccess:
		s.Sent++
	default:
		s.Failed++
	}
}
