package directory

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/channelpass/channelpass/app/models"
)

func TestNormalizeChannelID(t *testing.T) {
	tests := []struct {
		name string
		raw  int64
		want string
	}{
		{"positive id gets supergroup prefix", 1234567890, "-1001234567890"},
		{"negative id passes through", -1001234567890, "-1001234567890"},
		{"plain negative group id passes through", -987654, "-987654"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeChannelID(tt.raw); got != tt.want {
				t.Fatalf("NormalizeChannelID(%d) = %s, want %s", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNormalizeChannelIDString(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"1234567890", "-1001234567890"},
		{"-1001234567890", "-1001234567890"},
		{"@mychannel", "@mychannel"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := NormalizeChannelIDString(tt.raw); got != tt.want {
			t.Fatalf("NormalizeChannelIDString(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

// fakeLinkRepo implements just enough of the repository interface for
// directory tests.
type fakeLinkRepo struct {
	byPage     map[string]*models.ChannelLink
	setChannel map[uint]string
}

func (f *fakeLinkRepo) Create(*models.ChannelLink) error { return nil }
func (f *fakeLinkRepo) GetByPageID(pageID string) (*models.ChannelLink, error) {
	link, ok := f.byPage[pageID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *link
	return &copied, nil
}
func (f *fakeLinkRepo) GetByID(uint) (*models.ChannelLink, error)            { return nil, gorm.ErrRecordNotFound }
func (f *fakeLinkRepo) ListByCreatorID(uint) ([]models.ChannelLink, error)   { return nil, nil }
func (f *fakeLinkRepo) Update(*models.ChannelLink) error                     { return nil }
func (f *fakeLinkRepo) SetVerifiedAdmin(uint, bool) error                    { return nil }
func (f *fakeLinkRepo) ListPrices(uint) ([]models.PagePrice, error)          { return nil, nil }
func (f *fakeLinkRepo) ReplacePrices(uint, []models.PagePrice) error         { return nil }
func (f *fakeLinkRepo) SetChannelID(id uint, channelID string) error {
	if f.setChannel == nil {
		f.setChannel = map[uint]string{}
	}
	f.setChannel[id] = channelID
	f.byPage[pageForID(f.byPage, id)].ChannelID = channelID
	return nil
}

func pageForID(byPage map[string]*models.ChannelLink, id uint) string {
	for page, link := range byPage {
		if link.ID == id {
			return page
		}
	}
	return ""
}

type fakeResolver struct {
	id    int64
	err   error
	calls int
}

func (f *fakeResolver) ResolveEntity(_ context.Context, _ string) (int64, error) {
	f.calls++
	return f.id, f.err
}

type memoryKV map[string]string

func (m memoryKV) Get(key string) (string, error) {
	if v, ok := m[key]; ok {
		return v, nil
	}
	return "", errors.New("miss")
}
func (m memoryKV) Set(key string, value interface{}, _ time.Duration) error {
	m[key] = value.(string)
	return nil
}

func TestResolveUnknownPage(t *testing.T) {
	d := New(&fakeLinkRepo{byPage: map[string]*models.ChannelLink{}}, nil, nil)

	_, _, err := d.Resolve(context.Background(), "missing")
	if !errors.Is(err, ErrChannelNotConfigured) {
		t.Fatalf("expected ErrChannelNotConfigured, got %v", err)
	}
}

func TestResolveStoredChannelID(t *testing.T) {
	repo := &fakeLinkRepo{byPage: map[string]*models.ChannelLink{
		"page-1": {ID: 1, PageID: "page-1", ChannelID: "-1001234"},
	}}
	resolver := &fakeResolver{id: 999}
	d := New(repo, resolver, nil)

	got, _, err := d.Resolve(context.Background(), "page-1")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got != "-1001234" {
		t.Fatalf("expected stored id -1001234, got %s", got)
	}
	if resolver.calls != 0 {
		t.Fatalf("resolver should not run when a chat id is stored")
	}
}

func TestResolveHandleWritesBackOnce(t *testing.T) {
	repo := &fakeLinkRepo{byPage: map[string]*models.ChannelLink{
		"page-2": {ID: 2, PageID: "page-2", ChannelHandle: "@mychannel"},
	}}
	resolver := &fakeResolver{id: 1234567890}
	kv := memoryKV{}
	d := New(repo, resolver, kv)

	got, _, err := d.Resolve(context.Background(), "page-2")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got != "-1001234567890" {
		t.Fatalf("expected normalized id, got %s", got)
	}
	if repo.setChannel[2] != "-1001234567890" {
		t.Fatalf("expected write-back of resolved id, got %q", repo.setChannel[2])
	}

	// Second resolve reads the stored id; the resolver never runs again and
	// the prefix is not applied a second time.
	got, _, err = d.Resolve(context.Background(), "page-2")
	if err != nil {
		t.Fatalf("second Resolve returned error: %v", err)
	}
	if got != "-1001234567890" {
		t.Fatalf("expected stable id on second resolve, got %s", got)
	}
	if resolver.calls != 1 {
		t.Fatalf("expected a single resolver call, got %d", resolver.calls)
	}
}

func TestResolveNoHandleNoID(t *testing.T) {
	repo := &fakeLinkRepo{byPage: map[string]*models.ChannelLink{
		"page-3": {ID: 3, PageID: "page-3"},
	}}
	d := New(repo, &fakeResolver{id: 1}, nil)

	_, _, err := d.Resolve(context.Background(), "page-3")
	if !errors.Is(err, ErrChannelNotConfigured) {
		t.Fatalf("expected ErrChannelNotConfigured, got %v", err)
	}
}
