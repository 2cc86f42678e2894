package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ardhptr21/myits-lapor/internal/jobs"
	"github.com/ardhptr21/myits-lapor/internal/storage"
)

// sweptFolders are the store prefixes holding uploaded photos.
var sweptFolders = []string{"reports", "progresses"}

// PhotoReferences reports which photo paths are still used by a record.
type PhotoReferences interface {
	ReferencedPhotos(ctx context.Context, paths []string) (map[string]bool, error)
}

type Processor struct {
	store  storage.FileStore
	layout storage.Layout
	refs   PhotoReferences
	grace  time.Duration
	now    func() time.Time
	logger zerolog.Logger
}

func NewProcessor(store storage.FileStore, layout storage.Layout, refs PhotoReferences, grace time.Duration, logger zerolog.Logger) *Processor {
	return &Processor{
		store:  store,
		layout: layout,
		refs:   refs,
		grace:  grace,
		now:    time.Now,
		logger: logger,
	}
}

func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	task, err := jobs.Decode(msg.Values)
	if err != nil {
		// Malformed entries can never succeed; ack them.
		p.logger.Warn().Err(err).Str("message_id", msg.ID).Msg("dropping malformed task")
		return nil
	}

	switch task.Type {
	case jobs.TaskRemove:
		return p.handleRemove(ctx, task.Paths)
	case jobs.TaskSweep:
		return p.handleSweep(ctx)
	default:
		p.logger.Warn().Str("type", task.Type).Msg("unknown task type")
		return nil
	}
}

// handleRemove deletes the given photos unless a record references them again.
func (p *Processor) handleRemove(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	referenced, err := p.refs.ReferencedPhotos(ctx, paths)
	if err != nil {
		return fmt.Errorf("load photo references: %w", err)
	}

	var errs []error
	removed := 0
	for _, path := range paths {
		if referenced[path] {
			continue
		}
		key, err := p.layout.Key(path)
		if err != nil {
			p.logger.Warn().Str("path", path).Msg("skipping photo outside upload root")
			continue
		}
		if err := p.store.Remove(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		removed++
	}

	p.logger.Info().Int("removed", removed).Int("requested", len(paths)).Msg("remove task processed")
	return errors.Join(errs...)
}

// handleSweep removes stored photos older than the grace period that no
// report or progress references. The grace period protects uploads whose
// record is still being written.
func (p *Processor) handleSweep(ctx context.Context) error {
	cutoff := p.now().Add(-p.grace)

	var candidates []string
	for _, folder := range sweptFolders {
		files, err := p.store.List(ctx, folder)
		if err != nil {
			return fmt.Errorf("list %s: %w", folder, err)
		}
		for _, f := range files {
			if f.ModTime.Before(cutoff) {
				candidates = append(candidates, p.layout.Path(f.Key))
			}
		}
	}

	if len(candidates) == 0 {
		p.logger.Info().Msg("sweep found nothing to remove")
		return nil
	}
	return p.handleRemove(ctx, candidates)
}
