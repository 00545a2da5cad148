package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"FinFolio/internal/domain/models"
	domrepo "FinFolio/internal/domain/repository"
	applogger "FinFolio/pkg/logger"
	xutil "FinFolio/pkg/util"

	"github.com/redis/go-redis/v9"
)

// RedisPortfolioStore persists each portfolio state as one JSON document.
// Updates use optimistic locking (WATCH/MULTI) and retry on conflicts.
//
// Keys share the {portfolios} hash tag so a transaction touching a document
// and holder sets stays in one cluster slot:
//
//	<prefix>:{portfolios}:portfolio:<id>     state document
//	<prefix>:{portfolios}:index              set of ids
//	<prefix>:{portfolios}:holders:<SYMBOL>   set of ids holding SYMBOL
type RedisPortfolioStore struct {
	client     redis.UniversalClient
	prefix     string
	maxRetries int
	l          *applogger.Logger
}

func NewRedisPortfolioStore(client redis.UniversalClient, prefix string, maxRetries int, l *applogger.Logger) *RedisPortfolioStore {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	if l == nil {
		l = applogger.Nop()
	}
	tagged := "{portfolios}:"
	if prefix != "" {
		tagged = strings.TrimSuffix(prefix, ":") + ":" + tagged
	}
	return &RedisPortfolioStore{client: client, prefix: tagged, maxRetries: maxRetries, l: l}
}

func (s *RedisPortfolioStore) stateKey(id string) string { return s.prefix + "portfolio:" + id }
func (s *RedisPortfolioStore) indexKey() string          { return s.prefix + "index" }
func (s *RedisPortfolioStore) holdersKey(symbol string) string {
	return s.prefix + "holders:" + xutil.NormalizeSymbol(symbol)
}

func (s *RedisPortfolioStore) Create(ctx context.Context, state *models.PortfolioState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal portfolio: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.stateKey(state.Portfolio.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("create portfolio: %w", err)
	}
	if !ok {
		return domrepo.ErrPortfolioExists
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SAdd(ctx, s.indexKey(), state.Portfolio.ID)
		for sym := range state.Positions {
			p.SAdd(ctx, s.holdersKey(sym), state.Portfolio.ID)
		}
		return nil
	})
	return err
}

func (s *RedisPortfolioStore) Get(ctx context.Context, id string) (*models.PortfolioState, error) {
	return s.load(ctx, s.client, id)
}

func (s *RedisPortfolioStore) load(ctx context.Context, c redis.Cmdable, id string) (*models.PortfolioState, error) {
	data, err := c.Get(ctx, s.stateKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domrepo.ErrPortfolioNotFound
		}
		return nil, fmt.Errorf("get portfolio: %w", err)
	}
	var st models.PortfolioState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode portfolio %s: %w", id, err)
	}
	if st.Positions == nil {
		st.Positions = make(map[string]models.Position)
	}
	return &st, nil
}

func (s *RedisPortfolioStore) List(ctx context.Context) ([]models.Portfolio, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list portfolios: %w", err)
	}
	out := make([]models.Portfolio, 0, len(ids))
	for _, id := range ids {
		st, err := s.load(ctx, s.client, id)
		if errors.Is(err, domrepo.ErrPortfolioNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, st.Portfolio)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Update applies fn under WATCH on the state key. fn may run more than once
// when a concurrent writer wins the race; it must only mutate its argument.
func (s *RedisPortfolioStore) Update(ctx context.Context, id string, fn func(*models.PortfolioState) error) (*models.PortfolioState, error) {
	key := s.stateKey(id)
	var result *models.PortfolioState

	txf := func(tx *redis.Tx) error {
		cur, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		next := cur.Clone()
		if err := fn(next); err != nil {
			return err
		}
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("marshal portfolio: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, data, 0)
			for sym := range cur.Positions {
				if _, still := next.Positions[sym]; !still {
					p.SRem(ctx, s.holdersKey(sym), id)
				}
			}
			for sym := range next.Positions {
				if _, had := cur.Positions[sym]; !had {
					p.SAdd(ctx, s.holdersKey(sym), id)
				}
			}
			return nil
		})
		if err == nil {
			result = next
		}
		return err
	}

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return nil, err
		}
		s.l.Debug("portfolio update conflict, retrying",
			applogger.String("portfolio_id", id),
			applogger.Int("attempt", attempt+1),
		)
	}
	return nil, fmt.Errorf("update portfolio %s: %w", id, redis.TxFailedErr)
}

func (s *RedisPortfolioStore) Delete(ctx context.Context, id string) error {
	st, err := s.load(ctx, s.client, id)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, s.stateKey(id))
		p.SRem(ctx, s.indexKey(), id)
		for sym := range st.Positions {
			p.SRem(ctx, s.holdersKey(sym), id)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete portfolio: %w", err)
	}
	return nil
}

func (s *RedisPortfolioStore) Holders(ctx context.Context, symbol string) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.holdersKey(symbol)).Result()
	if err != nil {
		return nil, fmt.Errorf("holders %s: %w", symbol, err)
	}
	sort.Strings(ids)
	return ids, nil
}
