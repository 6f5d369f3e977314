package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"entregaflow-api/domain"
)

type backend interface {
	FetchBoard(ctx context.Context, agencyID string) (*domain.Board, string, error)
	InsertBoard(ctx context.Context, agencyID string, b domain.Board) (string, error)
	UpdateBoard(ctx context.Context, agencyID string, b domain.Board, etag string) error
	FetchAgency(ctx context.Context, agencyID string) (*domain.Agency, string, error)
	InsertAgency(ctx context.Context, a domain.Agency) error
	UpdateAgency(ctx context.Context, a domain.Agency, etag string) error
	SetAgencyStatus(ctx context.Context, agencyID, status string) error
	DeleteAgency(ctx context.Context, agencyID string) error
}

// Cache wraps a Storage instance with Redis-backed caching for board and
// agency reads, and publishes a board-updated event after successful board
// writes so stream subscribers can refresh.
type Cache struct {
	*Storage
	base    backend
	redis   *redis.Client
	ttl     time.Duration
	channel string
}

type cachedBoard struct {
	Board domain.Board `json:"board"`
	ETag  string       `json:"etag"`
}

type cachedAgency struct {
	Agency domain.Agency `json:"agency"`
	ETag   string        `json:"etag"`
}

// NewCache creates a caching Storage wrapper. channel names the redis pub/sub
// channel that carries board-updated notifications.
func NewCache(base backend, client *redis.Client, ttl time.Duration, channel string) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}

	c := &Cache{
		base:    base,
		redis:   client,
		ttl:     ttl,
		channel: channel,
	}
	if s, ok := base.(*Storage); ok {
		c.Storage = s
	}
	return c
}

func (c *Cache) FetchBoard(ctx context.Context, agencyID string) (*domain.Board, string, error) {
	if board, etag, ok := c.loadBoardFromCache(ctx, agencyID); ok {
		return board, etag, nil
	}

	board, etag, err := c.base.FetchBoard(ctx, agencyID)
	if err != nil {
		return nil, "", err
	}
	if board != nil {
		c.storeBoard(ctx, agencyID, *board, etag)
	}
	return board, etag, nil
}

func (c *Cache) InsertBoard(ctx context.Context, agencyID string, b domain.Board) (string, error) {
	etag, err := c.base.InsertBoard(ctx, agencyID, b)
	if err != nil {
		return "", err
	}
	c.evictBoard(ctx, agencyID)
	c.publishBoardUpdate(ctx, agencyID)
	return etag, nil
}

func (c *Cache) UpdateBoard(ctx context.Context, agencyID string, b domain.Board, etag string) error {
	if err := c.base.UpdateBoard(ctx, agencyID, b, etag); err != nil {
		return err
	}
	c.evictBoard(ctx, agencyID)
	c.publishBoardUpdate(ctx, agencyID)
	return nil
}

func (c *Cache) FetchAgency(ctx context.Context, agencyID string) (*domain.Agency, string, error) {
	if agency, etag, ok := c.loadAgencyFromCache(ctx, agencyID); ok {
		return agency, etag, nil
	}

	agency, etag, err := c.base.FetchAgency(ctx, agencyID)
	if err != nil {
		return nil, "", err
	}
	if agency != nil {
		c.storeAgency(ctx, agencyID, *agency, etag)
	}
	return agency, etag, nil
}

func (c *Cache) InsertAgency(ctx context.Context, a domain.Agency) error {
	if err := c.base.InsertAgency(ctx, a); err != nil {
		return err
	}
	c.evictAgency(ctx, a.ID)
	return nil
}

func (c *Cache) UpdateAgency(ctx context.Context, a domain.Agency, etag string) error {
	if err := c.base.UpdateAgency(ctx, a, etag); err != nil {
		return err
	}
	c.evictAgency(ctx, a.ID)
	return nil
}

func (c *Cache) SetAgencyStatus(ctx context.Context, agencyID, status string) error {
	if err := c.base.SetAgencyStatus(ctx, agencyID, status); err != nil {
		return err
	}
	c.evictAgency(ctx, agencyID)
	return nil
}

func (c *Cache) DeleteAgency(ctx context.Context, agencyID string) error {
	if err := c.base.DeleteAgency(ctx, agencyID); err != nil {
		return err
	}
	c.evictAgency(ctx, agencyID)
	c.evictBoard(ctx, agencyID)
	return nil
}

func (c *Cache) loadBoardFromCache(ctx context.Context, agencyID string) (*domain.Board, string, bool) {
	if c.redis == nil {
		return nil, "", false
	}
	data, err := c.redis.Get(ctx, boardCacheKey(agencyID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, boardCacheKey(agencyID)).Err()
		}
		return nil, "", false
	}
	var rec cachedBoard
	if err := json.Unmarshal(data, &rec); err != nil {
		_ = c.redis.Del(ctx, boardCacheKey(agencyID)).Err()
		return nil, "", false
	}
	return &rec.Board, rec.ETag, true
}

func (c *Cache) loadAgencyFromCache(ctx context.Context, agencyID string) (*domain.Agency, string, bool) {
	if c.redis == nil {
		return nil, "", false
	}
	data, err := c.redis.Get(ctx, agencyCacheKey(agencyID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			_ = c.redis.Del(ctx, agencyCacheKey(agencyID)).Err()
		}
		return nil, "", false
	}
	var rec cachedAgency
	if err := json.Unmarshal(data, &rec); err != nil {
		_ = c.redis.Del(ctx, agencyCacheKey(agencyID)).Err()
		return nil, "", false
	}
	return &rec.Agency, rec.ETag, true
}

func (c *Cache) storeBoard(ctx context.Context, agencyID string, b domain.Board, etag string) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(cachedBoard{Board: b, ETag: etag})
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, boardCacheKey(agencyID), data, c.ttl).Err()
}

func (c *Cache) storeAgency(ctx context.Context, agencyID string, a domain.Agency, etag string) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(cachedAgency{Agency: a, ETag: etag})
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, agencyCacheKey(agencyID), data, c.ttl).Err()
}

func (c *Cache) evictBoard(ctx context.Context, agencyID string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, boardCacheKey(agencyID)).Result()
}

func (c *Cache) evictAgency(ctx context.Context, agencyID string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, agencyCacheKey(agencyID)).Result()
}

func (c *Cache) publishBoardUpdate(ctx context.Context, agencyID string) {
	if c.redis == nil || c.channel == "" {
		return
	}
	payload, err := json.Marshal(struct {
		AgencyID string `json:"agencyId"`
	}{AgencyID: agencyID})
	if err != nil {
		return
	}
	_ = c.redis.Publish(ctx, c.channel, payload).Err()
}

func boardCacheKey(agencyID string) string {
	return "board:" + agencyID
}

func agencyCacheKey(agencyID string) string {
	return "agency:" + agencyID
}
