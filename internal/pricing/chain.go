package pricing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/leoygitty/GSR-App/internal/apperr"
	"github.com/sirupsen/logrus"
)

// ChainSource опрашивает источники по порядку и возвращает первый успешный ответ.
type ChainSource struct {
	sources []Source
	log     logrus.FieldLogger
}

// NewChainSource создает цепочку источников.
func NewChainSource(log logrus.FieldLogger, sources ...Source) *ChainSource {
	return &ChainSource{sources: sources, log: log}
}

// Name перечисляет провайдеров цепочки.
func (c *ChainSource) Name() string {
	names := make([]string, 0, len(c.sources))
	for _, s := range c.sources {
		names = append(names, s.Name())
	}
	return strings.Join(names, ",")
}

// FetchSpot возвращает котировку первого ответившего источника.
// Если упали все, ошибка объединяет причины каждого провайдера.
func (c *ChainSource) FetchSpot(ctx context.Context) (Quote, error) {
	if len(c.sources) == 0 {
		return Quote{}, apperr.Upstream("no price sources configured", nil)
	}

	var errs []error
	for _, s := range c.sources {
		q, err := s.FetchSpot(ctx)
		if err == nil {
			return q, nil
		}
		c.log.WithError(err).WithField("provider", s.Name()).Warn("[PriceChain] Источник котировок недоступен")
		errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))

		if ctx.Err() != nil {
			break
		}
	}
	return Quote{}, apperr.Upstream("all price sources failed", errors.Join(errs...))
}

var _ Source = (*ChainSource)(nil)
