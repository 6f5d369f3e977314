package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"entregaflow-api/domain"
)

// BoardBroker fans a board-updated notification out to the SSE subscribers
// of that agency's board.
type BoardBroker struct {
	mu   sync.Mutex
	subs map[string]map[chan struct{}]struct{}
}

func NewBoardBroker() *BoardBroker {
	return &BoardBroker{subs: make(map[string]map[chan struct{}]struct{})}
}

func (b *BoardBroker) subscribe(agencyID string) chan struct{} {
	ch := make(chan struct{}, 1)
	b.mu.Lock()
	set, ok := b.subs[agencyID]
	if !ok {
		set = make(map[chan struct{}]struct{})
		b.subs[agencyID] = set
	}
	set[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *BoardBroker) unsubscribe(agencyID string, ch chan struct{}) {
	b.mu.Lock()
	if set, ok := b.subs[agencyID]; ok {
		delete(set, ch)
		if len(set) == 0 {
			delete(b.subs, agencyID)
		}
	}
	b.mu.Unlock()
}

// Notify wakes all subscribers of the agency's board. Slow subscribers that
// already have a pending wake-up are skipped, not blocked on.
func (b *BoardBroker) Notify(agencyID string) {
	b.mu.Lock()
	for ch := range b.subs[agencyID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	b.mu.Unlock()
}

// SubscribeBoardUpdates listens on the redis channel fed by the storage cache
// and forwards notifications to the broker. It reconnects on channel loss
// until the context is cancelled.
func SubscribeBoardUpdates(ctx context.Context, logger *log.Logger, rc *redis.Client, channel string, broker *BoardBroker) {
	for {
		sub := rc.Subscribe(ctx, channel)
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				var ev struct {
					AgencyID string `json:"agencyId"`
				}
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					logger.Errorf("unable to parse board update: %v", err)
					continue
				}
				broker.Notify(ev.AgencyID)
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		logger.Error("board update channel closed, reconnecting")
		time.Sleep(time.Second)
	}
}

// streamBoard serves the live board over SSE: a full snapshot immediately,
// then a fresh one after every remote change. EventSource clients cannot set
// headers, so the bearer token is also accepted as a query parameter.
func streamBoard(store Storage, auth Authenticator, broker *BoardBroker) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
		if authHeader == "" {
			if token := c.QueryParam("token"); token != "" {
				authHeader = "Bearer " + token
			}
		}
		userID, err := auth.UserIDFromAuthHeader(authHeader)
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		ctx := c.Request().Context()
		agencyID := c.Param("id")
		agency, _, err := store.FetchAgency(ctx, agencyID)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to load agency")
		}
		if agency == nil {
			return c.String(http.StatusNotFound, "agency not found")
		}
		if !domain.CanViewContent(domain.ResolveRole(userID, *agency)) {
			return c.String(http.StatusForbidden, "not a member of this agency")
		}

		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}

		ch := broker.subscribe(agencyID)
		defer broker.unsubscribe(agencyID, ch)
		for {
			board, _, err := store.FetchBoard(ctx, agencyID)
			if err != nil {
				c.Logger().Error(err)
				return err
			}
			snapshot := domain.NewDefaultBoard()
			if board != nil {
				snapshot = *board
			}
			data, err := json.Marshal(boardResponse{Board: snapshot})
			if err != nil {
				c.Logger().Error(err)
				return err
			}
			if _, err := c.Response().Write([]byte("data: ")); err != nil {
				return err
			}
			if _, err := c.Response().Write(data); err != nil {
				return err
			}
			if _, err := c.Response().Write([]byte("\n\n")); err != nil {
				return err
			}
			flusher.Flush()
			select {
			case <-ctx.Done():
				return nil
			case <-ch:
				continue
			}
		}
	}
}
