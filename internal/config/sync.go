package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Limits centralizes the safety limits shared by the sync pipeline.
type Limits struct {
	PaginationCap     int            `mapstructure:"paginationCap" validate:"gt=0"`
	PageSize          int            `mapstructure:"pageSize" validate:"gt=0,lte=250"`
	MaxRetries        int            `mapstructure:"maxRetries" validate:"gte=0,lte=20"`
	BaseDelay         time.Duration  `mapstructure:"baseDelay" validate:"gt=0"`
	MaxDelay          time.Duration  `mapstructure:"maxDelay" validate:"gtefield=BaseDelay"`
	ThrottleThreshold float64        `mapstructure:"throttleThreshold" validate:"gte=0"`
	RequestsPerSecond float64        `mapstructure:"requestsPerSecond" validate:"gt=0"`
	Burst             int            `mapstructure:"burst" validate:"gt=0"`
	CacheTTL          time.Duration  `mapstructure:"cacheTTL" validate:"gte=0"`
	TierQuotas        map[string]int `mapstructure:"tierQuotas" validate:"required,dive,gte=0"`
}

func DefaultLimits() Limits {
	return Limits{
		PaginationCap:     10_000,
		PageSize:          50,
		MaxRetries:        5,
		BaseDelay:         500 * time.Millisecond,
		MaxDelay:          8 * time.Second,
		ThrottleThreshold: 100,
		RequestsPerSecond: 2,
		Burst:             4,
		CacheTTL:          6 * time.Hour,
		TierQuotas: map[string]int{
			"free":     1,
			"basic":    5,
			"advanced": 0,
		},
	}
}

// LimitsSource yields the limits currently in effect.
type LimitsSource interface {
	Limits() Limits
}

// StaticLimits is a LimitsSource that never changes.
type StaticLimits Limits

func (s StaticLimits) Limits() Limits { return Limits(s) }

type SyncConfigHolder struct {
	current atomic.Value // holds Limits
}

var limitsValidator = validator.New()

func NewSyncConfigHolder() (*SyncConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("sync")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/promosync/config")
	v.AddConfigPath("/etc/promosync")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PROMOSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultLimits()
	v.SetDefault("sync.paginationCap", defaults.PaginationCap)
	v.SetDefault("sync.pageSize", defaults.PageSize)
	v.SetDefault("sync.maxRetries", defaults.MaxRetries)
	v.SetDefault("sync.baseDelay", defaults.BaseDelay)
	v.SetDefault("sync.maxDelay", defaults.MaxDelay)
	v.SetDefault("sync.throttleThreshold", defaults.ThrottleThreshold)
	v.SetDefault("sync.requestsPerSecond", defaults.RequestsPerSecond)
	v.SetDefault("sync.burst", defaults.Burst)
	v.SetDefault("sync.cacheTTL", defaults.CacheTTL)
	v.SetDefault("sync.tierQuotas", defaults.TierQuotas)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	var limits Limits
	if err := v.UnmarshalKey("sync", &limits); err != nil {
		return nil, err
	}
	if err := ValidateLimits(limits); err != nil {
		return nil, err
	}

	holder := &SyncConfigHolder{}
	holder.current.Store(limits)

	if fileFound {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated Limits
			if err := v.UnmarshalKey("sync", &updated); err != nil {
				log.Printf("[sync-config] reload failed: %v", err)
				return
			}
			if err := ValidateLimits(updated); err != nil {
				log.Printf("[sync-config] invalid config ignored: %v", err)
				return
			}
			holder.current.Store(updated)
			log.Printf("[sync-config] reloaded from %s", e.Name)
		})
	}

	return holder, nil
}

func (h *SyncConfigHolder) Limits() Limits {
	return h.current.Load().(Limits)
}

func ValidateLimits(l Limits) error {
	if err := limitsValidator.Struct(l); err != nil {
		return err
	}
	for _, tier := range []string{"free", "basic", "advanced"} {
		if _, ok := l.TierQuotas[tier]; !ok {
			return errors.New("sync.tierQuotas must define free, basic and advanced")
		}
	}
	return nil
}
