package auth

import (
	"context"
	"testing"
	"time"

	"github.com/lqt0707/monitor/internal/model"
)

type fakeRepo struct {
	byKey   map[string]*model.ProjectConfig
	byID    map[string]*model.ProjectConfig
	lookups int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{byKey: make(map[string]*model.ProjectConfig), byID: make(map[string]*model.ProjectConfig)}
}

func (f *fakeRepo) seed(p *model.ProjectConfig) {
	f.byKey[p.APIKey] = p
	f.byID[p.ProjectID] = p
}

func (f *fakeRepo) GetByID(ctx context.Context, projectID string) (*model.ProjectConfig, error) {
	return f.byID[projectID], nil
}

func (f *fakeRepo) GetByAPIKey(ctx context.Context, apiKey string) (*model.ProjectConfig, error) {
	f.lookups++
	return f.byKey[apiKey], nil
}

func (f *fakeRepo) Put(ctx context.Context, cfg *model.ProjectConfig) error {
	f.seed(cfg)
	return nil
}

func TestCache_ResolveUnknownKey(t *testing.T) {
	repo := newFakeRepo()
	c := NewCache(repo, time.Minute, []byte("secret"))

	proj, token, err := c.Resolve(context.Background(), "nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if proj != nil || token != "" {
		t.Fatalf("expected nil project and empty token, got %+v %q", proj, token)
	}
}

func TestCache_ResolveCachesRepoLookup(t *testing.T) {
	repo := newFakeRepo()
	repo.seed(&model.ProjectConfig{ProjectID: "p1", APIKey: "key1"})
	c := NewCache(repo, time.Minute, []byte("secret"))

	for i := 0; i < 3; i++ {
		proj, token, err := c.Resolve(context.Background(), "key1")
		if err != nil {
			t.Fatalf("resolve %d: %v", i, err)
		}
		if proj == nil || proj.ProjectID != "p1" {
			t.Fatalf("resolve %d: unexpected project %+v", i, proj)
		}
		if token == "" {
			t.Fatalf("resolve %d: expected a signed token", i)
		}
	}
	if repo.lookups != 1 {
		t.Fatalf("expected exactly 1 repo lookup, got %d", repo.lookups)
	}
}

func TestCache_ResolveRefetchesAfterTTLExpiry(t *testing.T) {
	repo := newFakeRepo()
	repo.seed(&model.ProjectConfig{ProjectID: "p1", APIKey: "key1"})
	c := NewCache(repo, time.Millisecond, []byte("secret"))

	if _, _, err := c.Resolve(context.Background(), "key1"); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, _, err := c.Resolve(context.Background(), "key1"); err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if repo.lookups != 2 {
		t.Fatalf("expected 2 repo lookups after TTL expiry, got %d", repo.lookups)
	}
}

func TestCache_NoSigningSecretYieldsEmptyToken(t *testing.T) {
	repo := newFakeRepo()
	repo.seed(&model.ProjectConfig{ProjectID: "p1", APIKey: "key1"})
	c := NewCache(repo, time.Minute, nil)

	proj, token, err := c.Resolve(context.Background(), "key1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if proj == nil {
		t.Fatal("expected a resolved project")
	}
	if token != "" {
		t.Fatalf("expected empty token with no signing secret, got %q", token)
	}
}

func TestCache_VerifyTokenRoundTrip(t *testing.T) {
	repo := newFakeRepo()
	repo.seed(&model.ProjectConfig{ProjectID: "p1", APIKey: "key1"})
	c := NewCache(repo, time.Minute, []byte("secret"))

	_, token, err := c.Resolve(context.Background(), "key1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	projectID, err := c.VerifyToken(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if projectID != "p1" {
		t.Fatalf("expected p1, got %q", projectID)
	}
}

func TestCache_VerifyTokenRejectsWrongSecret(t *testing.T) {
	repo := newFakeRepo()
	repo.seed(&model.ProjectConfig{ProjectID: "p1", APIKey: "key1"})
	c := NewCache(repo, time.Minute, []byte("secret"))
	other := NewCache(repo, time.Minute, []byte("different-secret"))

	_, token, err := c.Resolve(context.Background(), "key1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if _, err := other.VerifyToken(token); err == nil {
		t.Fatal("expected verification to fail against a different signing secret")
	}
}

func TestCache_VerifyTokenRejectsGarbage(t *testing.T) {
	repo := newFakeRepo()
	c := NewCache(repo, time.Minute, []byte("secret"))

	if _, err := c.VerifyToken("not-a-jwt"); err == nil {
		t.Fatal("expected an error for a malformed token")
	}
}
