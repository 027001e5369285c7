package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/kirillkom/agri-assistant/internal/core/domain"
	"github.com/kirillkom/agri-assistant/internal/core/ports"
)

type GraphStatsUseCase struct {
	store ports.GraphStore
}

func NewGraphStatsUseCase(store ports.GraphStore) *GraphStatsUseCase {
	return &GraphStatsUseCase{store: store}
}

func (uc *GraphStatsUseCase) Stats(ctx context.Context) (domain.GraphStats, error) {
	if uc.store == nil {
		return domain.GraphStats{}, domain.WrapError(domain.ErrBackendUnavailable, "graph stats", errors.New("graph store is not configured"))
	}
	stats, err := uc.store.Stats(ctx)
	if err != nil {
		if domain.IsKind(err, domain.ErrBackendUnavailable) {
			return domain.GraphStats{}, err
		}
		return domain.GraphStats{}, domain.WrapError(domain.ErrBackendUnavailable, "graph stats", fmt.Errorf("read stats: %w", err))
	}
	return stats, nil
}
