package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/karvy-labs/loyaltypulse/internal/loyalty"
	"github.com/karvy-labs/loyaltypulse/internal/rules"
)

// Repository handles database access for the batch: candidate queries, rule
// and threshold loads, and the append-only audit log.
type Repository struct {
	db     *DB
	logger *zap.Logger
}

// NewRepository creates a new repository
func NewRepository(db *DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

const customerColumns = `id, name, COALESCE(mobile_no, ''), COALESCE(loyalty_program_id, ''), COALESCE(loyalty_tier, '')`

// BirthdayCandidates returns customers whose birthday falls on the given
// month-day ("MM-DD") and who have a mobile number on file.
func (r *Repository) BirthdayCandidates(ctx context.Context, monthDay string) ([]*Customer, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM customers
		WHERE to_char(birthday, 'MM-DD') = $1
		  AND mobile_no IS NOT NULL AND mobile_no <> ''
	`, customerColumns)

	return r.queryCustomers(ctx, query, monthDay)
}

// AnniversaryCandidates returns customers whose membership anniversary falls
// on the given month-day ("MM-DD") and who have a mobile number on file.
func (r *Repository) AnniversaryCandidates(ctx context.Context, monthDay string) ([]*Customer, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM customers
		WHERE to_char(member_since, 'MM-DD') = $1
		  AND mobile_no IS NOT NULL AND mobile_no <> ''
	`, customerColumns)

	return r.queryCustomers(ctx, query, monthDay)
}

func (r *Repository) queryCustomers(ctx context.Context, query string, args ...any) ([]*Customer, error) {
	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query customers: %w", err)
	}
	defer rows.Close()

	var customers []*Customer
	for rows.Next() {
		var c Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.MobileNo, &c.LoyaltyProgramID, &c.CachedTier); err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		customers = append(customers, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return customers, nil
}

// GetCustomer retrieves a single customer snapshot by id.
func (r *Repository) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	query := fmt.Sprintf(`SELECT %s FROM customers WHERE id = $1`, customerColumns)

	var c Customer
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&c.ID, &c.Name, &c.MobileNo, &c.LoyaltyProgramID, &c.CachedTier,
	)
	if err != nil {
		return nil, fmt.Errorf("query customer %s: %w", id, err)
	}
	return &c, nil
}

// ProgramThresholds returns a program's tier ladder ordered by min_spent.
func (r *Repository) ProgramThresholds(ctx context.Context, programID string) ([]loyalty.TierThreshold, error) {
	query := `
		SELECT tier_name, min_spent
		FROM tier_thresholds
		WHERE program_id = $1
		ORDER BY min_spent ASC
	`

	rows, err := r.db.Pool().Query(ctx, query, programID)
	if err != nil {
		return nil, fmt.Errorf("query tier thresholds: %w", err)
	}
	defer rows.Close()

	var thresholds []loyalty.TierThreshold
	for rows.Next() {
		var t loyalty.TierThreshold
		if err := rows.Scan(&t.TierName, &t.MinSpent); err != nil {
			return nil, fmt.Errorf("scan tier threshold: %w", err)
		}
		thresholds = append(thresholds, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return thresholds, nil
}

// EnabledRules loads all enabled notification rules with their per-tier
// discount overrides, in override insertion order.
func (r *Repository) EnabledRules(ctx context.Context) ([]rules.Rule, error) {
	query := `
		SELECT id, event_type, message_template, discount_type, discount_value, validity_days
		FROM notification_rules
		WHERE enabled
	`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query notification rules: %w", err)
	}
	defer rows.Close()

	var list []rules.Rule
	for rows.Next() {
		var rule rules.Rule
		if err := rows.Scan(&rule.ID, &rule.EventType, &rule.MessageTemplate,
			&rule.DiscountType, &rule.DiscountValue, &rule.ValidityDays); err != nil {
			return nil, fmt.Errorf("scan notification rule: %w", err)
		}
		rule.Enabled = true
		list = append(list, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	for i := range list {
		overrides, err := r.ruleOverrides(ctx, list[i].ID)
		if err != nil {
			return nil, err
		}
		list[i].TierDiscounts = overrides
	}

	return list, nil
}

func (r *Repository) ruleOverrides(ctx context.Context, ruleID string) ([]rules.TierDiscount, error) {
	query := `
		SELECT tier_name, discount_value
		FROM tier_discounts
		WHERE rule_id = $1
		ORDER BY idx ASC
	`

	rows, err := r.db.Pool().Query(ctx, query, ruleID)
	if err != nil {
		return nil, fmt.Errorf("query tier discounts for rule %s: %w", ruleID, err)
	}
	defer rows.Close()

	var overrides []rules.TierDiscount
	for rows.Next() {
		var td rules.TierDiscount
		if err := rows.Scan(&td.TierName, &td.DiscountValue); err != nil {
			return nil, fmt.Errorf("scan tier discount: %w", err)
		}
		overrides = append(overrides, td)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return overrides, nil
}

// TierChangeCandidate pairs a customer snapshot with its two windowed spend
// totals for the tier-change pass.
type TierChangeCandidate struct {
	Customer Customer
	Totals   SpendTotals
}

// TierChangeCandidates returns, per (customer, program), the spend totals as
// of currentDate and previousDate, restricted to customers with at least one
// qualifying point entry posted on currentDate. Customers without a row here
// are skipped by the tier-change pass entirely.
func (r *Repository) TierChangeCandidates(ctx context.Context, currentDate, previousDate time.Time) ([]*TierChangeCandidate, error) {
	query := `
		WITH current_totals AS (
			SELECT customer_id, loyalty_program_id, SUM(purchase_amount) AS current_total
			FROM loyalty_point_entries
			WHERE posting_date <= $1
			  AND expiry_date >= $1
			  AND loyalty_points > 0
			GROUP BY customer_id, loyalty_program_id
		),
		previous_totals AS (
			SELECT customer_id, loyalty_program_id, SUM(purchase_amount) AS previous_total
			FROM loyalty_point_entries
			WHERE posting_date <= $2
			  AND expiry_date >= $2
			  AND loyalty_points > 0
			GROUP BY customer_id, loyalty_program_id
		)
		SELECT
			cust.id,
			cust.name,
			COALESCE(cust.mobile_no, ''),
			c.loyalty_program_id,
			COALESCE(cust.loyalty_tier, ''),
			COALESCE(p.previous_total, 0),
			COALESCE(c.current_total, 0)
		FROM current_totals c
		LEFT JOIN previous_totals p
			ON c.customer_id = p.customer_id
			AND c.loyalty_program_id = p.loyalty_program_id
		INNER JOIN customers cust
			ON c.customer_id = cust.id
		WHERE EXISTS (
			SELECT 1
			FROM loyalty_point_entries lpe
			WHERE lpe.customer_id = c.customer_id
			  AND lpe.posting_date = $1
		)
	`

	rows, err := r.db.Pool().Query(ctx, query, currentDate, previousDate)
	if err != nil {
		return nil, fmt.Errorf("query tier change candidates: %w", err)
	}
	defer rows.Close()

	var candidates []*TierChangeCandidate
	for rows.Next() {
		var tc TierChangeCandidate
		if err := rows.Scan(
			&tc.Customer.ID,
			&tc.Customer.Name,
			&tc.Customer.MobileNo,
			&tc.Customer.LoyaltyProgramID,
			&tc.Customer.CachedTier,
			&tc.Totals.PreviousTotal,
			&tc.Totals.CurrentTotal,
		); err != nil {
			return nil, fmt.Errorf("scan tier change candidate: %w", err)
		}
		tc.Totals.CustomerID = tc.Customer.ID
		tc.Totals.LoyaltyProgramID = tc.Customer.LoyaltyProgramID
		candidates = append(candidates, &tc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return candidates, nil
}

// AppendNotificationRecord inserts one audit row. Records are append-only;
// there is no update or delete path.
func (r *Repository) AppendNotificationRecord(ctx context.Context, rec *NotificationRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}

	query := `
		INSERT INTO notification_log (
			id, customer_id, event_type, outcome, message,
			loyalty_program_id, loyalty_tier, coupon_ref
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`

	err := r.db.Pool().QueryRow(ctx, query,
		rec.ID,
		rec.CustomerID,
		rec.EventType,
		rec.Outcome,
		rec.Message,
		nullable(rec.LoyaltyProgramID),
		nullable(rec.LoyaltyTier),
		nullable(rec.CouponRef),
	).Scan(&rec.CreatedAt)

	if err != nil {
		r.logger.Error("failed to append notification record",
			zap.Error(err),
			zap.String("customer_id", rec.CustomerID),
			zap.String("event_type", rec.EventType),
		)
		return fmt.Errorf("insert notification record: %w", err)
	}

	return nil
}

// CreateCouponIntent inserts a coupon write-intent for the commerce system.
func (r *Repository) CreateCouponIntent(ctx context.Context, intent *CouponIntent) error {
	if intent.ID == uuid.Nil {
		intent.ID = uuid.New()
	}
	if intent.MaximumUse == 0 {
		intent.MaximumUse = 1
	}

	query := `
		INSERT INTO coupon_intents (
			id, customer_id, event_type, discount_type, discount_value,
			valid_from, valid_upto, maximum_use
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`

	err := r.db.Pool().QueryRow(ctx, query,
		intent.ID,
		intent.CustomerID,
		intent.EventType,
		intent.DiscountType,
		intent.DiscountValue,
		intent.ValidFrom,
		intent.ValidUpto,
		intent.MaximumUse,
	).Scan(&intent.CreatedAt)

	if err != nil {
		return fmt.Errorf("insert coupon intent: %w", err)
	}

	r.logger.Info("coupon intent created",
		zap.String("coupon_id", intent.ID.String()),
		zap.String("customer_id", intent.CustomerID),
		zap.String("event_type", intent.EventType),
	)

	return nil
}

// UpdateCustomerTier stores a freshly detected tier on the customer row so
// the cached tier catches up with the classification.
func (r *Repository) UpdateCustomerTier(ctx context.Context, customerID, tier string) error {
	query := `UPDATE customers SET loyalty_tier = $1 WHERE id = $2`

	result, err := r.db.Pool().Exec(ctx, query, tier, customerID)
	if err != nil {
		return fmt.Errorf("update customer tier: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("customer not found: %s", customerID)
	}

	return nil
}

// RecentRecords returns the newest audit rows, for the operator CLI.
func (r *Repository) RecentRecords(ctx context.Context, limit int) ([]*NotificationRecord, error) {
	query := `
		SELECT id, customer_id, event_type, outcome, message,
		       COALESCE(loyalty_program_id, ''), COALESCE(loyalty_tier, ''),
		       COALESCE(coupon_ref, ''), created_at
		FROM notification_log
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.db.Pool().Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query notification log: %w", err)
	}
	defer rows.Close()

	var records []*NotificationRecord
	for rows.Next() {
		var rec NotificationRecord
		if err := rows.Scan(&rec.ID, &rec.CustomerID, &rec.EventType, &rec.Outcome,
			&rec.Message, &rec.LoyaltyProgramID, &rec.LoyaltyTier, &rec.CouponRef,
			&rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification record: %w", err)
		}
		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return records, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
