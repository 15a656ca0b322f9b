package workflow

import (
	"context"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/rfid_backend/config"
	"bitbucket.org/mmdatafocus/rfid_backend/models"
	"bitbucket.org/mmdatafocus/rfid_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ResolvedTag is the purchase-order line a scanned code stands for.
type ResolvedTag struct {
	Code                string          `json:"code"`
	PurchaseOrderNumber string          `json:"po_number"`
	LotNumber           string          `json:"lot_no"`
	ItemNumber          string          `json:"item_number"`
	Quantity            decimal.Decimal `json:"quantity"`
}

// TagCache fronts the registration table. Registrations are immutable, so a
// cached entry only goes stale when provisioning deletes the code.
type TagCache interface {
	Get(ctx context.Context, code string) (*ResolvedTag, bool)
	Set(ctx context.Context, tag *ResolvedTag)
}

// ResolveTagCode maps a scanned code to its registration. An unknown code
// returns an error wrapping utils.ErrNotFound.
func ResolveTagCode(ctx context.Context, tx *gorm.DB, cache TagCache, code string) (*ResolvedTag, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, utils.ErrBadRequest
	}
	if cache != nil {
		if tag, ok := cache.Get(ctx, code); ok {
			return tag, nil
		}
	}
	reg, err := models.GetTagRegistrationByCode(tx.WithContext(ctx), code)
	if err != nil {
		return nil, err
	}
	tag := &ResolvedTag{
		Code:                reg.Code,
		PurchaseOrderNumber: reg.PurchaseOrderNumber,
		LotNumber:           reg.LotNumber,
		ItemNumber:          reg.ItemNumber,
		Quantity:            reg.Quantity,
	}
	if cache != nil {
		cache.Set(ctx, tag)
	}
	return tag, nil
}

// RedisTagCache stores resolved tags under tag:<code>. Redis being down only
// costs a DB round trip.
type RedisTagCache struct {
	TTL    time.Duration
	Logger *logrus.Logger
}

func NewRedisTagCache(ttl time.Duration, logger *logrus.Logger) *RedisTagCache {
	return &RedisTagCache{TTL: ttl, Logger: logger}
}

func (c *RedisTagCache) key(code string) string {
	return "tag:" + code
}

func (c *RedisTagCache) Get(ctx context.Context, code string) (*ResolvedTag, bool) {
	var tag ResolvedTag
	ok, err := config.GetRedisObject(ctx, c.key(code), &tag)
	if err != nil {
		config.LogError(c.Logger, "resolver.go", "RedisTagCache.Get", "GetRedisObject", code, err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return &tag, true
}

func (c *RedisTagCache) Set(ctx context.Context, tag *ResolvedTag) {
	if c.TTL <= 0 {
		return
	}
	if err := config.SetRedisObject(ctx, c.key(tag.Code), tag, c.TTL); err != nil {
		config.LogError(c.Logger, "resolver.go", "RedisTagCache.Set", "SetRedisObject", tag.Code, err)
	}
}
