package pricing

import (
	"context"
	"time"

	"github.com/leoygitty/GSR-App/internal/cache"
	"golang.org/x/sync/singleflight"
)

const spotKey = "spot"

// CachedSource кэширует котировку на короткое время. Одновременные промахи
// разделяют один запрос к источнику.
type CachedSource struct {
	inner Source
	cache *cache.TTL[Quote]
	group singleflight.Group
}

// NewCachedSource оборачивает источник кэшем с заданным TTL.
func NewCachedSource(inner Source, ttl time.Duration, clock cache.Clock) *CachedSource {
	return &CachedSource{
		inner: inner,
		cache: cache.NewTTL[Quote](ttl, clock),
	}
}

// Name возвращает имя обернутого источника.
func (c *CachedSource) Name() string { return c.inner.Name() }

// FetchSpot отдает котировку из кэша или запрашивает источник.
// Ошибки не кэшируются. Общий запрос не зависит от отмены контекста
// отдельного вызывающего и ограничен DefaultTimeout; отмененный вызывающий
// перестает ждать, остальные получают результат.
func (c *CachedSource) FetchSpot(ctx context.Context) (Quote, error) {
	if q, ok := c.cache.Get(spotKey); ok {
		return q, nil
	}

	ch := c.group.DoChan(spotKey, func() (any, error) {
		if q, ok := c.cache.Get(spotKey); ok {
			return q, nil
		}
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultTimeout)
		defer cancel()

		q, err := c.inner.FetchSpot(fetchCtx)
		if err != nil {
			return Quote{}, err
		}
		c.cache.Set(spotKey, q)
		return q, nil
	})

	select {
	case <-ctx.Done():
		return Quote{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Quote{}, res.Err
		}
		return res.Val.(Quote), nil
	}
}

// Invalidate сбрасывает кэшированную котировку.
func (c *CachedSource) Invalidate() {
	c.cache.Invalidate(spotKey)
}

var _ Source = (*CachedSource)(nil)
