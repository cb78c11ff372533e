package cache

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"orgchart/internal/domain"
)

type stubStore struct {
	calls int
	fn    func(call int) ([]domain.Author, error)
}

func (s *stubStore) ListAuthors(context.Context) ([]domain.Author, error) {
	s.calls++
	return s.fn(s.calls)
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func boss(id int64) *int64 { return &id }

func TestAuthorsMissThenHit(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()
	expected := []domain.Author{
		{ID: 1, Name: "Jonny Jones", Username: "blockbuster", AccountID: 1},
		{ID: 2, Name: "Emily Hynes", Username: "emily", AccountID: 2, BossID: boss(1)},
	}
	store := &stubStore{fn: func(int) ([]domain.Author, error) {
		return append([]domain.Author(nil), expected...), nil
	}}
	c := NewAuthors(store, client, time.Minute, "test", nil)

	got, err := c.ListAuthors(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !reflect.DeepEqual(got, expected) {
		t.Fatalf("unexpected authors: %#v", got)
	}
	if ttl := mr.TTL("test:authors:0"); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected TTL: %v", ttl)
	}
	cached, err := c.ListAuthors(ctx)
	if err != nil {
		t.Fatalf("cached list: %v", err)
	}
	if !reflect.DeepEqual(cached, expected) {
		t.Fatalf("unexpected cached authors: %#v", cached)
	}
	if store.calls != 1 {
		t.Fatalf("expected one store read, got %d", store.calls)
	}
}

func TestAuthorsInvalidateStartsNewGeneration(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()
	store := &stubStore{fn: func(call int) ([]domain.Author, error) {
		authors := []domain.Author{{ID: 1, Name: "Jonny Jones"}}
		if call > 1 {
			authors = append(authors, domain.Author{ID: 2, Name: "Emily Hynes", BossID: boss(1)})
		}
		return authors, nil
	}}
	c := NewAuthors(store, client, time.Minute, "org", nil)

	first, err := c.ListAuthors(ctx)
	if err != nil || len(first) != 1 {
		t.Fatalf("first read: %v %v", first, err)
	}
	c.Invalidate(ctx)
	if v, _ := mr.Get("org:authors:gen"); v != "1" {
		t.Fatalf("expected generation 1, got %q", v)
	}
	second, err := c.ListAuthors(ctx)
	if err != nil || len(second) != 2 {
		t.Fatalf("read after invalidate should see the new author: %v %v", second, err)
	}
	if !mr.Exists("org:authors:1") {
		t.Fatalf("new generation should be cached")
	}
	if store.calls != 2 {
		t.Fatalf("expected two store reads, got %d", store.calls)
	}
}

func TestAuthorsFallsBackWhenRedisIsDown(t *testing.T) {
	mr, client := newRedis(t)
	mr.Close()
	store := &stubStore{fn: func(int) ([]domain.Author, error) {
		return []domain.Author{{ID: 1, Name: "Jonny Jones"}}, nil
	}}
	c := NewAuthors(store, client, time.Minute, "org", nil)
	for i := 0; i < 2; i++ {
		got, err := c.ListAuthors(context.Background())
		if err != nil || len(got) != 1 {
			t.Fatalf("fallback read: %v %v", got, err)
		}
	}
	if store.calls != 2 {
		t.Fatalf("every read should hit the store, got %d", store.calls)
	}
	c.Invalidate(context.Background())
}

func TestAuthorsStoreErrorIsReturned(t *testing.T) {
	_, client := newRedis(t)
	boom := errors.New("boom")
	store := &stubStore{fn: func(int) ([]domain.Author, error) { return nil, boom }}
	c := NewAuthors(store, client, time.Minute, "org", nil)
	if _, err := c.ListAuthors(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestAuthorsCorruptEntryIsDropped(t *testing.T) {
	mr, client := newRedis(t)
	if err := mr.Set("org:authors:0", "not json"); err != nil {
		t.Fatal(err)
	}
	store := &stubStore{fn: func(int) ([]domain.Author, error) {
		return []domain.Author{{ID: 1, Name: "Jonny Jones"}}, nil
	}}
	c := NewAuthors(store, client, time.Minute, "org", nil)
	got, err := c.ListAuthors(context.Background())
	if err != nil || len(got) != 1 {
		t.Fatalf("read: %v %v", got, err)
	}
	if store.calls != 1 {
		t.Fatalf("corrupt entry should force a store read")
	}
}
