package directory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/channelpass/channelpass/app/models"
	"github.com/channelpass/channelpass/app/repository"
	"github.com/channelpass/channelpass/internal/pkg/cache"
)

// ErrChannelNotConfigured is returned when no channel link exists for a page
// or the link has neither a chat id nor a resolvable handle.
var ErrChannelNotConfigured = errors.New("no channel configured for page")

// EntityResolver turns a public @handle into a numeric chat id. The Telegram
// gateway implements this.
type EntityResolver interface {
	ResolveEntity(ctx context.Context, handle string) (int64, error)
}

// KV is the small cache surface the directory needs.
type KV interface {
	Get(key string) (string, error)
	Set(key string, value interface{}, expiration time.Duration) error
}

// cacheKV adapts the package-level cache client to the KV interface.
type cacheKV struct{}

func (cacheKV) Get(key string) (string, error) { return cache.Get(key) }
func (cacheKV) Set(key string, value interface{}, expiration time.Duration) error {
	return cache.Set(key, value, expiration)
}

// NewCacheKV returns a KV backed by the shared Redis client.
func NewCacheKV() KV { return cacheKV{} }

const resolveCacheTTL = 6 * time.Hour

// Directory maps page ids to Telegram chat ids. Resolution prefers the
// stored chat id, falls back to resolving the channel handle once and writing
// the result back, and caches hits in Redis.
type Directory struct {
	links    repository.ChannelLinkRepository
	resolver EntityResolver
	kv       KV
}

func New(links repository.ChannelLinkRepository, resolver EntityResolver, kv KV) *Directory {
	return &Directory{links: links, resolver: resolver, kv: kv}
}

// Resolve returns the chat id for a page along with the link record.
func (d *Directory) Resolve(ctx context.Context, pageID string) (string, *models.ChannelLink, error) {
	link, err := d.links.GetByPageID(pageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, fmt.Errorf("%w: %s", ErrChannelNotConfigured, pageID)
		}
		return "", nil, err
	}

	if link.ChannelID != "" {
		return link.ChannelID, link, nil
	}

	if d.kv != nil {
		if cached, err := d.kv.Get(cacheKey(pageID)); err == nil && cached != "" {
			return cached, link, nil
		}
	}

	if link.ChannelHandle == "" || d.resolver == nil {
		return "", nil, fmt.Errorf("%w: %s has no chat id or handle", ErrChannelNotConfigured, pageID)
	}

	rawID, err := d.resolver.ResolveEntity(ctx, link.ChannelHandle)
	if err != nil {
		return "", nil, fmt.Errorf("resolve handle %s: %w", link.ChannelHandle, err)
	}

	channelID := NormalizeChannelID(rawID)
	// Write back so every later event skips the resolver round trip.
	if err := d.links.SetChannelID(link.ID, channelID); err != nil {
		return "", nil, err
	}
	link.ChannelID = channelID

	if d.kv != nil {
		_ = d.kv.Set(cacheKey(pageID), channelID, resolveCacheTTL)
	}

	return channelID, link, nil
}

// NormalizeChannelID converts a raw chat id into Telegram's supergroup form.
// Ids that are already negative pass through untouched, so normalizing twice
// never stacks the prefix.
func NormalizeChannelID(raw int64) string {
	if raw < 0 {
		return strconv.FormatInt(raw, 10)
	}
	return "-100" + strconv.FormatInt(raw, 10)
}

// NormalizeChannelIDString is the string form used when the id arrives from
// configuration input rather than the resolver.
func NormalizeChannelIDString(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "-") || strings.HasPrefix(raw, "@") {
		return raw
	}
	return "-100" + raw
}

func cacheKey(pageID string) string {
	return "channel:page:" + pageID
}
