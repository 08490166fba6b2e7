// cache.go — LRU-кэш групп файлов с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/tbc-ingest/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	groupCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tbc_group_cache_hits_total",
		Help: "Общее количество попаданий в кэш групп файлов.",
	})
	groupCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tbc_group_cache_misses_total",
		Help: "Общее количество промахов кэша групп файлов.",
	})
)

// GroupCache — кэш групп по идентификатору.
// Кэш локален для экземпляра сервиса; запись в группы его инвалидирует.
type GroupCache struct {
	cache *expirable.LRU[int, model.FileGroup]
}

// NewGroupCache создаёт кэш на maxSize записей с временем жизни ttl.
func NewGroupCache(maxSize int, ttl time.Duration) *GroupCache {
	return &GroupCache{cache: expirable.NewLRU[int, model.FileGroup](maxSize, nil, ttl)}
}

// Get возвращает копию группы из кэша.
func (c *GroupCache) Get(id int) (*model.FileGroup, bool) {
	g, ok := c.cache.Get(id)
	if !ok {
		groupCacheMissesTotal.Inc()
		return nil, false
	}
	groupCacheHitsTotal.Inc()
	return &g, true
}

// Set добавляет или обновляет группу в кэше.
func (c *GroupCache) Set(g *model.FileGroup) {
	c.cache.Add(g.ID, *g)
}

// Delete удаляет группу из кэша.
func (c *GroupCache) Delete(id int) {
	c.cache.Remove(id)
}
