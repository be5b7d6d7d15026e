package sync

import (
	"context"
	"fmt"

	"github.com/iudanet/runsync/internal/models"
)

// ChoiceKind selects the version that survives a manual resolution
type ChoiceKind int

const (
	ChooseLocal ChoiceKind = iota + 1
	ChooseServer
	ChooseMerged
)

func (k ChoiceKind) String() string {
	switch k {
	case ChooseLocal:
		return "local"
	case ChooseServer:
		return "server"
	case ChooseMerged:
		return "merged"
	default:
		return fmt.Sprintf("choice(%d)", int(k))
	}
}

// Choice is a manual resolution decision
type Choice struct {
	Merged *models.Record // Merged версия, собранная пользователем (только для ChooseMerged)
	Kind   ChoiceKind
}

// UseLocal keeps the local version and overwrites the remote
func UseLocal() Choice { return Choice{Kind: ChooseLocal} }

// UseServer keeps the remote version
func UseServer() Choice { return Choice{Kind: ChooseServer} }

// UseMerged keeps a caller-built version and overwrites the remote
func UseMerged(r *models.Record) Choice { return Choice{Kind: ChooseMerged, Merged: r} }

// ListConflicts returns unresolved conflicts of a collection
func (e *Engine) ListConflicts(ctx context.Context, collection string) ([]*models.Conflict, error) {
	conflicts, err := e.store.ListConflicts(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to list conflicts: %w", err)
	}
	return conflicts, nil
}

// ListAllConflicts returns unresolved conflicts of every collection
func (e *Engine) ListAllConflicts(ctx context.Context) ([]*models.Conflict, error) {
	names, err := e.store.ConflictCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list conflict collections: %w", err)
	}

	all := make([]*models.Conflict, 0)
	for _, name := range names {
		conflicts, err := e.ListConflicts(ctx, name)
		if err != nil {
			return nil, err
		}
		all = append(all, conflicts...)
	}
	return all, nil
}

// Resolve applies a manual decision to a conflict. The conflicted queue
// entry is replaced: choosing the local or a merged version turns it into a
// forced update and requests a reconciliation pass, choosing the server
// version drops it. Entries queued after the conflict are kept and replayed
// over the chosen version, which is what gets written locally.
// Returns storage.ErrConflictNotFound if the record has no conflict.
func (e *Engine) Resolve(ctx context.Context, collection, id string, choice Choice) (*models.Record, error) {
	c, err := e.store.GetConflict(ctx, collection, id)
	if err != nil {
		return nil, fmt.Errorf("resolve %s/%s: %w", collection, id, err)
	}

	var winner *models.Record
	switch choice.Kind {
	case ChooseLocal:
		winner = c.Local.Clone()
	case ChooseServer:
		winner = c.Remote.Clone()
	case ChooseMerged:
		if choice.Merged == nil {
			return nil, fmt.Errorf("resolve %s/%s: merged record missing: %w", collection, id, ErrInvalidChoice)
		}
		winner = choice.Merged.Clone()
	default:
		return nil, fmt.Errorf("resolve %s/%s: %w", collection, id, ErrInvalidChoice)
	}
	winner.SetID(c.ID)

	// Версия сервера на момент конфликта становится базой для сравнения
	if err := e.store.PutShadow(ctx, collection, c.Remote); err != nil {
		return nil, fmt.Errorf("resolve %s/%s: %w", collection, id, err)
	}

	push := choice.Kind != ChooseServer
	// Правки, сделанные после конфликта, остаются в очереди поверх решения
	current, err := e.queue.ResolveEntry(ctx, c.Seq, collection, winner, push)
	if err != nil {
		return nil, fmt.Errorf("resolve %s/%s: %w", collection, id, err)
	}
	if current == nil {
		err = e.store.Delete(ctx, collection, id)
	} else {
		err = e.store.Put(ctx, collection, current)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve %s/%s: %w", collection, id, err)
	}

	if err := e.store.DeleteConflict(ctx, collection, id); err != nil {
		return nil, fmt.Errorf("resolve %s/%s: %w", collection, id, err)
	}

	e.logger.Info("Conflict resolved", "collection", collection, "id", id, "choice", choice.Kind)

	if push && e.trigger != nil {
		e.trigger()
	}
	return winner, nil
}
