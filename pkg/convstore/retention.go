package convstore

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultRetentionAge keeps conversations for 30 days after their last
	// update before pruning.
	DefaultRetentionAge = 30 * 24 * time.Hour

	// DefaultRetentionSchedule runs the pruning pass daily at 03:00.
	DefaultRetentionSchedule = "0 3 * * *"
)

// Retention prunes conversations whose UpdatedAt is older than MaxAge on a
// cron schedule.
type Retention struct {
	store    Store
	maxAge   time.Duration
	schedule string
	cron     *cron.Cron
	entryID  cron.EntryID
	running  bool
}

// RetentionConfig configures the retention job.
type RetentionConfig struct {
	MaxAge   time.Duration
	Schedule string
}

// NewRetention creates a retention job over the given store.
func NewRetention(store Store, cfg RetentionConfig) *Retention {
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultRetentionAge
	}
	schedule := cfg.Schedule
	if schedule == "" {
		schedule = DefaultRetentionSchedule
	}

	return &Retention{
		store:    store,
		maxAge:   maxAge,
		schedule: schedule,
		cron:     cron.New(),
	}
}

// Start schedules the pruning job.
func (r *Retention) Start() error {
	if r.running {
		return fmt.Errorf("retention is already running")
	}

	entryID, err := r.cron.AddFunc(r.schedule, func() {
		if _, err := r.Prune(context.Background()); err != nil {
			log.Error().Err(err).Msg("Retention prune failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule retention: %w", err)
	}

	r.entryID = entryID
	r.cron.Start()
	r.running = true

	log.Info().
		Dur("max_age", r.maxAge).
		Str("schedule", r.schedule).
		Msg("Conversation retention started")

	return nil
}

// Stop stops the scheduled job.
func (r *Retention) Stop() error {
	if !r.running {
		return fmt.Errorf("retention is not running")
	}

	r.cron.Remove(r.entryID)
	r.cron.Stop()
	r.running = false

	log.Info().Msg("Conversation retention stopped")

	return nil
}

// Prune deletes conversations idle beyond MaxAge and returns how many were
// removed.
func (r *Retention) Prune(ctx context.Context) (int, error) {
	conversations, err := r.store.ListConversations(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list conversations: %w", err)
	}

	cutoff := time.Now().Add(-r.maxAge)
	pruned := 0

	for _, conv := range conversations {
		if conv.UpdatedAt.After(cutoff) {
			continue
		}
		if err := r.store.DeleteConversation(ctx, conv.ID); err != nil {
			log.Warn().Str("conversation_id", conv.ID).Err(err).Msg("Failed to prune conversation")
			continue
		}
		pruned++
	}

	if pruned > 0 {
		log.Info().Int("pruned", pruned).Msg("Pruned idle conversations")
	}

	return pruned, nil
}
