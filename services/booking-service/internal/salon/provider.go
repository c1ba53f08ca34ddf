// Package salon fetches salon configuration from salon-service over gRPC, caching booking
// configs in Redis until a salon.config.changed.v1 event invalidates them.
package salon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/md-rashed-zaman/salonbook/libs/availability"
	"github.com/md-rashed-zaman/salonbook/libs/salonapi"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// ErrNotFound means salon-service does not know the requested service.
	ErrNotFound = errors.New("salon service not found")
	// ErrUnavailable wraps transport failures talking to salon-service.
	ErrUnavailable = errors.New("salon config unavailable")
)

// Provider is what the booking handlers need from salon-service.
type Provider interface {
	// BookingConfig may answer from cache.
	BookingConfig(ctx context.Context, salonID, serviceID string) (salonapi.BookingConfig, error)
	// FreshBookingConfig always asks salon-service and refreshes the cache.
	FreshBookingConfig(ctx context.Context, salonID, serviceID string) (salonapi.BookingConfig, error)
	// TimeOff returns approved time-off overlapping date.
	TimeOff(ctx context.Context, salonID string, date time.Time) ([]availability.TimeOff, error)
}

// ConfigClient is the subset of *salonapi.Client the provider calls.
type ConfigClient interface {
	GetBookingConfig(ctx context.Context, in *salonapi.GetBookingConfigRequest, opts ...grpc.CallOption) (*salonapi.BookingConfig, error)
	ListTimeOff(ctx context.Context, in *salonapi.ListTimeOffRequest, opts ...grpc.CallOption) (*salonapi.ListTimeOffResponse, error)
}

type Options struct {
	CallTimeout time.Duration
	CacheTTL    time.Duration
}

type GRPCProvider struct {
	client  ConfigClient
	cache   *Cache
	logger  *slog.Logger
	timeout time.Duration
}

// NewProvider wraps client. A nil cache disables caching.
func NewProvider(client ConfigClient, cache *Cache, logger *slog.Logger, opts Options) *GRPCProvider {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 3 * time.Second
	}
	return &GRPCProvider{client: client, cache: cache, logger: logger, timeout: opts.CallTimeout}
}

func (p *GRPCProvider) BookingConfig(ctx context.Context, salonID, serviceID string) (salonapi.BookingConfig, error) {
	if p.cache != nil {
		cfg, ok, err := p.cache.Get(ctx, salonID, serviceID)
		if err != nil {
			p.logger.Warn("salon config cache read failed", "err", err, "salon_id", salonID)
		}
		if ok {
			cacheLookups.WithLabelValues("hit").Inc()
			return cfg, nil
		}
		cacheLookups.WithLabelValues("miss").Inc()
	}
	return p.FreshBookingConfig(ctx, salonID, serviceID)
}

func (p *GRPCProvider) FreshBookingConfig(ctx context.Context, salonID, serviceID string) (salonapi.BookingConfig, error) {
	// The generation is read before the fetch so an invalidation racing with it wins.
	cacheable := p.cache != nil
	var gen int64
	if cacheable {
		var err error
		if gen, err = p.cache.Generation(ctx, salonID); err != nil {
			p.logger.Warn("salon config cache read failed", "err", err, "salon_id", salonID)
			cacheable = false
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cfg, err := p.client.GetBookingConfig(callCtx, &salonapi.GetBookingConfigRequest{SalonID: salonID, ServiceID: serviceID})
	if err != nil {
		return salonapi.BookingConfig{}, classify(err)
	}
	if cacheable {
		stored, err := p.cache.Put(ctx, *cfg, gen)
		switch {
		case err != nil:
			p.logger.Warn("salon config cache write failed", "err", err, "salon_id", salonID)
		case !stored:
			p.logger.Debug("salon config changed during fetch, not cached", "salon_id", salonID)
		}
	}
	return *cfg, nil
}

func (p *GRPCProvider) TimeOff(ctx context.Context, salonID string, date time.Time) ([]availability.TimeOff, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	day := date.Format(salonapi.DateLayout)
	resp, err := p.client.ListTimeOff(callCtx, &salonapi.ListTimeOffRequest{SalonID: salonID, From: day, To: day})
	if err != nil {
		return nil, classify(err)
	}
	return resp.TimeOff, nil
}

func classify(err error) error {
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, status.Convert(err).Message())
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// Cache stores booking configs in one Redis hash per salon, field = service id, so a salon's
// entries can be dropped with a single DEL. A per-salon generation counter, bumped on every
// invalidation, keeps a fetch that started before the invalidation from writing back.
type Cache struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

func NewCache(rdb redis.UniversalClient, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Cache{rdb: rdb, ttl: ttl}
}

// generationTTL outlives any in-flight fetch. An expired counter reads as 0, which only
// causes a skipped write.
const generationTTL = 24 * time.Hour

// putScript: KEYS[1] hash, KEYS[2] generation; ARGV generation, field, value, ttl ms.
var putScript = redis.NewScript(`
if (redis.call('GET', KEYS[2]) or '0') ~= ARGV[1] then
  return 0
end
redis.call('HSET', KEYS[1], ARGV[2], ARGV[3])
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return 1
`)

func cacheKey(salonID string) string {
	return "salon:cfg:" + salonID
}

func generationKey(salonID string) string {
	return "salon:cfg:gen:" + salonID
}

// Generation returns the salon's invalidation counter, 0 when it was never bumped.
func (c *Cache) Generation(ctx context.Context, salonID string) (int64, error) {
	gen, err := c.rdb.Get(ctx, generationKey(salonID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *Cache) Get(ctx context.Context, salonID, serviceID string) (salonapi.BookingConfig, bool, error) {
	raw, err := c.rdb.HGet(ctx, cacheKey(salonID), serviceID).Bytes()
	if errors.Is(err, redis.Nil) {
		return salonapi.BookingConfig{}, false, nil
	}
	if err != nil {
		return salonapi.BookingConfig{}, false, err
	}
	var cfg salonapi.BookingConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return salonapi.BookingConfig{}, false, err
	}
	return cfg, true, nil
}

// Put stores cfg unless the salon was invalidated after gen was read. stored reports whether
// the write happened.
func (c *Cache) Put(ctx context.Context, cfg salonapi.BookingConfig, gen int64) (stored bool, err error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return false, err
	}
	keys := []string{cacheKey(cfg.SalonID), generationKey(cfg.SalonID)}
	n, err := putScript.Run(ctx, c.rdb, keys, strconv.FormatInt(gen, 10), cfg.Service.ID, raw, c.ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Invalidate drops every cached config of the salon and bumps its generation.
func (c *Cache) Invalidate(ctx context.Context, salonID string) error {
	pipe := c.rdb.TxPipeline()
	pipe.Incr(ctx, generationKey(salonID))
	pipe.Expire(ctx, generationKey(salonID), generationTTL)
	pipe.Del(ctx, cacheKey(salonID))
	_, err := pipe.Exec(ctx)
	return err
}
