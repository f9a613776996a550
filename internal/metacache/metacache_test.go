package metacache

import (
	"context"
	"errors"
	"testing"

	"tradedash/internal/model"
)

type countingSource struct {
	calls int
	name  string
	err   error
}

func (s *countingSource) Metadata(ctx context.Context, code string) (model.Metadata, error) {
	s.calls++
	if s.err != nil {
		return model.Metadata{}, s.err
	}
	return model.Metadata{StockCode: code, StockName: s.name}, nil
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string) (model.Metadata, bool, error) {
	return model.Metadata{}, false, errors.New("down")
}

func (brokenCache) Put(context.Context, model.Metadata) (model.Metadata, error) {
	return model.Metadata{}, errors.New("down")
}

func (brokenCache) Clear(context.Context) error { return errors.New("down") }

func TestMemory_WriteOnce(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	first, _ := c.Put(ctx, model.Metadata{StockCode: "005930", StockName: "first"})
	second, _ := c.Put(ctx, model.Metadata{StockCode: "005930", StockName: "second"})
	if first.StockName != "first" || second.StockName != "first" {
		t.Errorf("put should keep the first value, got %q then %q", first.StockName, second.StockName)
	}
	got, ok, _ := c.Get(ctx, "005930")
	if !ok || got.StockName != "first" {
		t.Errorf("get: %+v ok=%v", got, ok)
	}

	c.Clear(ctx)
	if _, ok, _ := c.Get(ctx, "005930"); ok || c.Len() != 0 {
		t.Error("clear should drop entries")
	}
}

func TestLoader_FetchesOncePerCode(t *testing.T) {
	src := &countingSource{name: "삼성전자"}
	l := NewLoader(NewMemory(), src)
	hits, misses := 0, 0
	l.OnHit = func() { hits++ }
	l.OnMiss = func() { misses++ }

	for i := 0; i < 3; i++ {
		m, err := l.Get(context.Background(), "005930")
		if err != nil || m.StockName != "삼성전자" {
			t.Fatalf("Get: %+v %v", m, err)
		}
	}
	if src.calls != 1 {
		t.Errorf("source calls: got %d, want 1", src.calls)
	}
	if hits != 2 || misses != 1 {
		t.Errorf("hits=%d misses=%d", hits, misses)
	}
}

func TestLoader_ErrorIsNotCached(t *testing.T) {
	src := &countingSource{err: errors.New("404")}
	c := NewMemory()
	l := NewLoader(c, src)

	if _, err := l.Get(context.Background(), "999999"); err == nil {
		t.Fatal("expected error")
	}
	if c.Len() != 0 {
		t.Error("failed fetch must not be cached")
	}
}

func TestLoader_DegradesWhenCacheFails(t *testing.T) {
	src := &countingSource{name: "SK하이닉스"}
	l := NewLoader(brokenCache{}, src)

	m, err := l.Get(context.Background(), "000660")
	if err != nil || m.StockName != "SK하이닉스" {
		t.Errorf("got %+v %v", m, err)
	}
}
