package receivables

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/lexpraxis/backend-lexis/internal/billing"
	"github.com/lexpraxis/backend-lexis/internal/common"
	"github.com/lexpraxis/backend-lexis/internal/events"
	"github.com/lexpraxis/backend-lexis/internal/obs"
)

const dashboardCacheKey = "receivables:dashboard"

// DocumentSource supplies the billing documents an import run reconciles
// against. Satisfied by billing.Store.
type DocumentSource interface {
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]billing.Document, error)
}

// Emitter publishes domain events. Satisfied by events.Bus.
type Emitter interface {
	Emit(ctx context.Context, topic string, payload any) error
}

// Service carries receivable use cases.
type Service struct {
	Store         Store
	Docs          DocumentSource
	Events        Emitter
	Email         common.EmailSender
	From          string
	Cache         *redis.Client
	CacheTTL      time.Duration
	DueSoonWindow time.Duration
	Now           func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Import runs one import: reconcile the selected documents into installment
// drafts, number them, persist the whole batch atomically and announce it.
// Each run creates a fresh batch even for documents imported before.
func (s *Service) Import(ctx context.Context, cfg ImportConfiguration) ([]Receivable, error) {
	if err := common.ValidateStruct(cfg); err != nil {
		return nil, err
	}
	docs, err := s.Docs.ListByIDs(ctx, cfg.DocumentIDs())
	if err != nil {
		return nil, fmt.Errorf("load documents: %w", err)
	}
	drafts, err := Reconcile(cfg, docs)
	if err != nil {
		return nil, err
	}

	recs := make([]Receivable, len(drafts))
	for i, d := range drafts {
		docID := d.SourceDocumentID
		recs[i] = Receivable{
			Number:               d.Number,
			ClientName:           d.ClientName,
			ClientEmail:          d.ClientEmail,
			ClientPhone:          d.ClientPhone,
			Description:          d.Description,
			Notes:                d.Notes,
			Amount:               d.Amount,
			Currency:             d.Currency,
			DueDate:              d.DueDate,
			Status:               StatusNew,
			SourceDocumentID:     &docID,
			SourceDocumentNumber: d.SourceDocumentNumber,
			SourceDocumentType:   d.SourceDocumentType,
			InstallmentIndex:     d.InstallmentIndex,
			InstallmentCount:     d.InstallmentCount,
		}
	}
	inserted, err := s.Store.InsertBatch(ctx, recs)
	if err != nil {
		return nil, err
	}
	if obs.ImportedReceivables != nil {
		obs.ImportedReceivables.Add(float64(len(inserted)))
	}
	s.invalidateDashboard(ctx)
	if s.Events != nil {
		for _, rec := range inserted {
			_ = s.Events.Emit(ctx, events.TopicReceivableImported, eventPayload(rec))
		}
	}
	return inserted, nil
}

// Get fetches one receivable. A first view moves it out of the just-imported
// state so the dashboard stops counting it as new.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Receivable, error) {
	rec, err := s.Store.Get(ctx, id)
	if err != nil {
		return Receivable{}, err
	}
	if rec.Status == StatusNew {
		if err := s.Store.SetStatus(ctx, id, StatusPending); err != nil {
			return Receivable{}, err
		}
		rec.Status = StatusPending
		s.invalidateDashboard(ctx)
	}
	return rec, nil
}

// List returns receivables matching the filter plus the unpaged count.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Receivable, int64, error) {
	return s.Store.List(ctx, filter)
}

// MarkPaid settles a receivable and announces the payment.
func (s *Service) MarkPaid(ctx context.Context, id uuid.UUID) (Receivable, error) {
	rec, err := s.Store.MarkPaid(ctx, id, s.now())
	if err != nil {
		return Receivable{}, err
	}
	s.invalidateDashboard(ctx)
	if s.Events != nil {
		_ = s.Events.Emit(ctx, events.TopicReceivablePaid, eventPayload(rec))
	}
	return rec, nil
}

// SweepOverdue flips every open receivable past its due date and announces
// each one. Meant to run from the scheduled scan, once per cycle.
func (s *Service) SweepOverdue(ctx context.Context) (int, error) {
	start := time.Now()
	flipped, err := s.Store.MarkOverdue(ctx, s.now())
	if obs.OverdueScanDuration != nil {
		obs.OverdueScanDuration.Observe(obs.DurationMillis(time.Since(start)))
	}
	if err != nil {
		return 0, err
	}
	if len(flipped) == 0 {
		return 0, nil
	}
	s.invalidateDashboard(ctx)
	if s.Events != nil {
		for _, rec := range flipped {
			_ = s.Events.Emit(ctx, events.TopicReceivableOverdue, eventPayload(rec))
		}
	}
	return len(flipped), nil
}

// DueSoon lists open receivables falling due inside the configured window.
func (s *Service) DueSoon(ctx context.Context) ([]Receivable, error) {
	window := s.DueSoonWindow
	if window <= 0 {
		window = 3 * 24 * time.Hour
	}
	now := s.now()
	return s.Store.ListDueWithin(ctx, now, now.Add(window))
}

// AnnounceDueSoon emits one due-soon event per receivable in the window.
func (s *Service) AnnounceDueSoon(ctx context.Context) (int, error) {
	recs, err := s.DueSoon(ctx)
	if err != nil {
		return 0, err
	}
	if s.Events != nil {
		for _, rec := range recs {
			_ = s.Events.Emit(ctx, events.TopicReceivableDueSoon, eventPayload(rec))
		}
	}
	return len(recs), nil
}

// SendReminder emails the client about an open receivable and records the
// dispatch time.
func (s *Service) SendReminder(ctx context.Context, id uuid.UUID) (Receivable, error) {
	rec, err := s.Store.Get(ctx, id)
	if err != nil {
		return Receivable{}, err
	}
	if rec.Status == StatusPaid {
		return Receivable{}, common.NewValidationError("receivable is already paid", nil)
	}
	if rec.ClientEmail == "" {
		return Receivable{}, common.NewValidationError("receivable has no client email", nil)
	}
	if s.Email != nil {
		msg := common.EmailMessage{
			From:     s.From,
			To:       []string{rec.ClientEmail},
			Subject:  fmt.Sprintf("Lembrete de cobranca %s", rec.Number),
			HTMLBody: renderReminderEmail(rec),
		}
		if err := s.Email.Send(msg); err != nil {
			if obs.ReminderDispatches != nil {
				obs.ReminderDispatches.WithLabelValues("email", "error").Inc()
			}
			return Receivable{}, fmt.Errorf("send reminder: %w", err)
		}
		if obs.ReminderDispatches != nil {
			obs.ReminderDispatches.WithLabelValues("email", "ok").Inc()
		}
	}
	now := s.now()
	if err := s.Store.TouchReminder(ctx, id, now); err != nil {
		return Receivable{}, err
	}
	rec.LastReminderAt = &now
	rec.CollectionAttempts++
	if s.Events != nil {
		_ = s.Events.Emit(ctx, events.TopicReceivableReminder, eventPayload(rec))
	}
	return rec, nil
}

// ReminderFailure reports one receivable a batch run could not remind.
type ReminderFailure struct {
	ReceivableID uuid.UUID `json:"receivableId"`
	Reason       string    `json:"reason"`
}

// ReminderReport summarises a batch reminder run.
type ReminderReport struct {
	Sent   int               `json:"sent"`
	Failed []ReminderFailure `json:"failed,omitempty"`
}

// SendReminders dispatches one reminder per selected receivable. A receivable
// that cannot be reminded (paid, no email, unknown id) is reported in the
// result instead of failing the whole run.
func (s *Service) SendReminders(ctx context.Context, ids []uuid.UUID) (ReminderReport, error) {
	if len(ids) == 0 {
		return ReminderReport{}, common.NewValidationError("select at least one receivable", nil)
	}
	var report ReminderReport
	for _, id := range ids {
		if _, err := s.SendReminder(ctx, id); err != nil {
			report.Failed = append(report.Failed, ReminderFailure{ReceivableID: id, Reason: err.Error()})
			continue
		}
		report.Sent++
	}
	return report, nil
}

// Dashboard returns the aggregate view, served from Redis when fresh.
func (s *Service) Dashboard(ctx context.Context) (Summary, error) {
	if s.Cache != nil {
		if raw, err := s.Cache.Get(ctx, dashboardCacheKey).Bytes(); err == nil {
			var cached Summary
			if err := json.Unmarshal(raw, &cached); err == nil {
				return cached, nil
			}
		}
	}
	window := s.DueSoonWindow
	if window <= 0 {
		window = 3 * 24 * time.Hour
	}
	now := s.now()
	sum, err := s.Store.Summary(ctx, now, now.Add(window))
	if err != nil {
		return Summary{}, err
	}
	if s.Cache != nil {
		ttl := s.CacheTTL
		if ttl <= 0 {
			ttl = time.Minute
		}
		if raw, err := json.Marshal(sum); err == nil {
			if err := s.Cache.Set(ctx, dashboardCacheKey, raw, ttl).Err(); err != nil {
				zerolog.Ctx(ctx).Warn().Err(err).Msg("dashboard cache write failed")
			}
		}
	}
	return sum, nil
}

func (s *Service) invalidateDashboard(ctx context.Context) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Del(ctx, dashboardCacheKey).Err(); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("dashboard cache invalidation failed")
	}
}

func eventPayload(rec Receivable) map[string]any {
	return map[string]any{
		"receivableId": rec.ID,
		"number":       rec.Number,
		"clientName":   rec.ClientName,
		"amount":       rec.Amount,
		"currency":     rec.Currency,
		"dueDate":      rec.DueDate,
		"status":       rec.Status,
	}
}

func renderReminderEmail(rec Receivable) string {
	return fmt.Sprintf("<p>Ola %s,</p><p>A cobranca <strong>%s</strong> (%s) no valor de %s %s vence em %s.</p>",
		rec.ClientName, rec.Number, rec.Description, rec.Currency, rec.Amount.StringFixed(2),
		rec.DueDate.Format("02/01/2006"))
}
