package repository

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"FinFolio/internal/domain/models"
	domrepo "FinFolio/internal/domain/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

func newRedisStore(t *testing.T, maxRetries int) (*RedisPortfolioStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisPortfolioStore(client, "finfolio", maxRetries, nil), mr
}

func TestRedisStoreCreateGetList(t *testing.T) {
	s, mr := newRedisStore(t, 5)
	ctx := context.Background()

	if err := s.Create(ctx, newState("p1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Create(ctx, newState("p1")); !errors.Is(err, domrepo.ErrPortfolioExists) {
		t.Fatalf("expected ErrPortfolioExists, got %v", err)
	}
	if _, err := s.Get(ctx, "missing"); !errors.Is(err, domrepo.ErrPortfolioNotFound) {
		t.Fatalf("expected ErrPortfolioNotFound, got %v", err)
	}
	list, err := s.List(ctx)
	if err != nil || len(list) != 1 || list[0].ID != "p1" {
		t.Fatalf("list: %v %+v", err, list)
	}
	for _, k := range mr.Keys() {
		if !strings.HasPrefix(k, "finfolio:{portfolios}:") {
			t.Fatalf("key %q lacks the shared hash tag", k)
		}
	}
}

func TestRedisStoreUpdateRollsBackOnError(t *testing.T) {
	s, _ := newRedisStore(t, 5)
	ctx := context.Background()
	_ = s.Create(ctx, newState("p1"))

	boom := errors.New("boom")
	_, err := s.Update(ctx, "p1", func(st *models.PortfolioState) error {
		st.Positions["AAPL"] = models.Position{Symbol: "AAPL", Quantity: decimal.NewFromInt(1)}
		st.Operations = append(st.Operations, models.OperationRecord{ID: "op1"})
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	st, _ := s.Get(ctx, "p1")
	if st.Holds("AAPL") || len(st.Operations) != 0 {
		t.Fatalf("failed update must not be visible: %+v", st)
	}
	if ids, _ := s.Holders(ctx, "AAPL"); len(ids) != 0 {
		t.Fatalf("failed update must not register a holder: %v", ids)
	}
}

func TestRedisStoreConcurrentUpdatesConverge(t *testing.T) {
	const writers = 10
	s, _ := newRedisStore(t, writers*2)
	ctx := context.Background()
	_ = s.Create(ctx, newState("p1"))

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Update(ctx, "p1", func(st *models.PortfolioState) error {
				st.Operations = append(st.Operations, models.OperationRecord{ID: "x"})
				return nil
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("update: %v", err)
		}
	}
	st, _ := s.Get(ctx, "p1")
	if len(st.Operations) != writers {
		t.Fatalf("expected %d operations, got %d", writers, len(st.Operations))
	}
}

func TestRedisStoreHoldersFollowPositions(t *testing.T) {
	s, _ := newRedisStore(t, 5)
	ctx := context.Background()
	_ = s.Create(ctx, newState("p1"))
	_ = s.Create(ctx, newState("p2"))

	buy := func(id string) {
		t.Helper()
		if _, err := s.Update(ctx, id, func(st *models.PortfolioState) error {
			st.Positions["AAPL"] = models.Position{Symbol: "AAPL", Quantity: decimal.NewFromInt(10)}
			return nil
		}); err != nil {
			t.Fatalf("buy %s: %v", id, err)
		}
	}
	buy("p2")
	buy("p1")
	ids, _ := s.Holders(ctx, " aapl ")
	if len(ids) != 2 || ids[0] != "p1" || ids[1] != "p2" {
		t.Fatalf("unexpected holders %v", ids)
	}

	if _, err := s.Update(ctx, "p1", func(st *models.PortfolioState) error {
		delete(st.Positions, "AAPL")
		return nil
	}); err != nil {
		t.Fatalf("closing sell: %v", err)
	}
	ids, _ = s.Holders(ctx, "AAPL")
	if len(ids) != 1 || ids[0] != "p2" {
		t.Fatalf("closed position must drop the holder: %v", ids)
	}

	if err := s.Delete(ctx, "p2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ids, _ = s.Holders(ctx, "AAPL"); len(ids) != 0 {
		t.Fatalf("deleted portfolio must drop the holder: %v", ids)
	}
}
