package alert

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/guregu/null/v6"
	"github.com/nepselabs/feed-service/internal/entity"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// equalsEpsilon is the tolerance applied to the equals operator.
var equalsEpsilon = decimal.NewFromFloat(0.01)

var (
	ErrAlertNotFound = fmt.Errorf("alert not found")
)

// Store persists the full alert set. The engine writes through it on every
// mutation; a failing store is logged and in-memory state stays
// authoritative for the session.
type Store interface {
	SaveAlerts(ctx context.Context, alerts []entity.MarketAlert) error
}

// TriggerFunc receives every fired alert, typically to publish it on the
// fan-out bus.
type TriggerFunc func(trigger entity.AlertTrigger)

// Engine evaluates registered conditions against accepted quote updates with
// at-most-once-trigger semantics: a triggered alert stays silent until the
// caller reactivates it.
//
// crosses_above and crosses_below are evaluated as plain threshold checks
// against the single latest value; the engine keeps no prior-value memory.
type Engine struct {
	mu        sync.RWMutex
	alerts    map[string]entity.MarketAlert
	store     Store
	onTrigger TriggerFunc
	now       func() time.Time
}

func NewEngine(store Store, onTrigger TriggerFunc) *Engine {
	return &Engine{
		alerts:    make(map[string]entity.MarketAlert),
		store:     store,
		onTrigger: onTrigger,
		now:       time.Now,
	}
}

// CreateSpec is the caller-facing shape for new alerts.
type CreateSpec struct {
	Symbol    string
	Type      entity.AlertType
	Condition entity.AlertCondition
	Message   string
	Priority  entity.AlertPriority
}

func (e *Engine) Create(ctx context.Context, spec CreateSpec) (entity.MarketAlert, error) {
	symbol := entity.NormalizeSymbol(spec.Symbol)
	if symbol == "" {
		return entity.MarketAlert{}, fmt.Errorf("alert symbol is required")
	}
	if err := validateCondition(spec.Condition); err != nil {
		return entity.MarketAlert{}, err
	}

	priority := spec.Priority
	if priority == "" {
		priority = entity.AlertPriorityMedium
	}

	created := entity.MarketAlert{
		ID:               uuid.NewString(),
		Symbol:           symbol,
		Type:             spec.Type,
		Condition:        spec.Condition,
		Message:          spec.Message,
		IsActive:         true,
		CreatedAt:        e.now().UTC(),
		Priority:         priority,
		NotificationSent: false,
	}

	e.mu.Lock()
	e.alerts[created.ID] = created
	e.mu.Unlock()

	e.persist(ctx)

	return created, nil
}

func (e *Engine) Alerts() []entity.MarketAlert {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]entity.MarketAlert, 0, len(e.alerts))
	for _, a := range e.alerts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	return out
}

func (e *Engine) Delete(ctx context.Context, id string) error {
	e.mu.Lock()
	if _, ok := e.alerts[id]; !ok {
		e.mu.Unlock()
		return ErrAlertNotFound
	}
	delete(e.alerts, id)
	e.mu.Unlock()

	e.persist(ctx)

	return nil
}

// Toggle flips the active flag. Reactivating a triggered alert clears its
// trigger timestamp so it may fire again.
func (e *Engine) Toggle(ctx context.Context, id string) (entity.MarketAlert, error) {
	e.mu.Lock()
	current, ok := e.alerts[id]
	if !ok {
		e.mu.Unlock()
		return entity.MarketAlert{}, ErrAlertNotFound
	}

	current.IsActive = !current.IsActive
	if current.IsActive {
		current.TriggeredAt = null.Time{}
		current.NotificationSent = false
	}
	e.alerts[id] = current
	e.mu.Unlock()

	e.persist(ctx)

	return current, nil
}

// Load replaces the alert set, used on warm start from the snapshot store.
func (e *Engine) Load(alerts []entity.MarketAlert) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.alerts = make(map[string]entity.MarketAlert, len(alerts))
	for _, a := range alerts {
		a.Symbol = entity.NormalizeSymbol(a.Symbol)
		e.alerts[a.ID] = a
	}
}

func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.alerts = make(map[string]entity.MarketAlert)
}

// Evaluate scans active, untriggered alerts for the quote's symbol. A single
// malformed condition is logged and skipped without aborting the rest.
func (e *Engine) Evaluate(ctx context.Context, q entity.Quote) {
	symbol := entity.NormalizeSymbol(q.Symbol)

	e.mu.RLock()
	candidates := make([]entity.MarketAlert, 0)
	for _, a := range e.alerts {
		if a.Symbol != symbol || !a.IsActive || a.TriggeredAt.Valid {
			continue
		}
		candidates = append(candidates, a)
	}
	e.mu.RUnlock()

	fired := false
	for _, candidate := range candidates {
		value, err := conditionValue(candidate.Condition.Field, q)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"alert_id": candidate.ID,
				"symbol":   symbol,
				"field":    candidate.Condition.Field,
			}).Warnf("skipping alert evaluation: %v", err)
			continue
		}

		if !conditionMatches(candidate.Condition.Operator, value, candidate.Condition.Value) {
			continue
		}

		if e.trigger(candidate.ID, q, value) {
			fired = true
		}
	}

	if fired {
		e.persist(ctx)
	}
}

// trigger re-checks under the write lock so concurrent evaluations of the
// same alert fire at most once.
func (e *Engine) trigger(id string, q entity.Quote, value decimal.Decimal) bool {
	e.mu.Lock()
	current, ok := e.alerts[id]
	if !ok || !current.IsActive || current.TriggeredAt.Valid {
		e.mu.Unlock()
		return false
	}

	now := e.now().UTC()
	current.TriggeredAt = null.TimeFrom(now)
	current.NotificationSent = true
	if current.Type == entity.AlertTypePrice {
		// One-shot semantics for price alerts.
		current.IsActive = false
	}
	e.alerts[id] = current
	e.mu.Unlock()

	message := renderMessage(current, value)
	logrus.WithFields(logrus.Fields{
		"alert_id": current.ID,
		"symbol":   current.Symbol,
		"type":     current.Type,
		"value":    value.String(),
	}).Info("alert triggered")

	if e.onTrigger != nil {
		e.onTrigger(entity.AlertTrigger{
			Alert:       current,
			Quote:       q,
			Message:     message,
			TriggeredAt: now,
		})
	}

	return true
}

func (e *Engine) persist(ctx context.Context) {
	if e.store == nil {
		return
	}

	if err := e.store.SaveAlerts(ctx, e.Alerts()); err != nil {
		logrus.Errorf("failed to persist alerts: %v", err)
	}
}

func validateCondition(cond entity.AlertCondition) error {
	switch cond.Operator {
	case entity.AlertOperatorAbove, entity.AlertOperatorBelow, entity.AlertOperatorEquals,
		entity.AlertOperatorCrossesAbove, entity.AlertOperatorCrossesBelow:
	default:
		return fmt.Errorf("unsupported alert operator: %q", cond.Operator)
	}

	switch cond.Field {
	case entity.AlertFieldPrice, entity.AlertFieldVolume, entity.AlertFieldChangePercent,
		entity.AlertFieldRSI, entity.AlertFieldMACD:
	default:
		return fmt.Errorf("unsupported alert field: %q", cond.Field)
	}

	return nil
}

// conditionValue extracts the compared value from the quote. RSI and MACD
// need an upstream indicator feed the quote does not carry, so those alerts
// are skipped at evaluation time.
func conditionValue(field entity.AlertField, q entity.Quote) (decimal.Decimal, error) {
	switch field {
	case entity.AlertFieldPrice:
		return q.Price, nil
	case entity.AlertFieldVolume:
		return decimal.NewFromInt(q.Volume), nil
	case entity.AlertFieldChangePercent:
		return decimal.NewFromFloat(q.ChangePercent), nil
	default:
		return decimal.Zero, fmt.Errorf("field %q requires an indicator feed", field)
	}
}

func conditionMatches(op entity.AlertOperator, value, threshold decimal.Decimal) bool {
	switch op {
	case entity.AlertOperatorAbove, entity.AlertOperatorCrossesAbove:
		return value.GreaterThan(threshold)
	case entity.AlertOperatorBelow, entity.AlertOperatorCrossesBelow:
		return value.LessThan(threshold)
	case entity.AlertOperatorEquals:
		return value.Sub(threshold).Abs().LessThanOrEqual(equalsEpsilon)
	default:
		return false
	}
}

// renderMessage fills the caller's template, or builds a default line when
// none was provided. Supported placeholders: {symbol}, {value}, {threshold}.
func renderMessage(a entity.MarketAlert, value decimal.Decimal) string {
	if strings.TrimSpace(a.Message) == "" {
		return fmt.Sprintf("%s %s %s %s (current: %s)",
			a.Symbol, a.Condition.Field, a.Condition.Operator, a.Condition.Value.String(), value.String())
	}

	replacer := strings.NewReplacer(
		"{symbol}", a.Symbol,
		"{value}", value.String(),
		"{threshold}", a.Condition.Value.String(),
	)

	return replacer.Replace(a.Message)
}
