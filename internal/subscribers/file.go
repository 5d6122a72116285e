package subscribers

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/darkden-lab/eventbus/internal/bus"
	"github.com/darkden-lab/eventbus/internal/logging"
)

const (
	TypeLog     = "log"
	TypeWebhook = "webhook"
)

// ErrInvalidProviderFile is returned when a subscription file cannot be
// turned into a provider.
var ErrInvalidProviderFile = errors.New("invalid subscription file")

type subscriberConfig struct {
	Type          string `mapstructure:"type"`
	WebhookConfig `mapstructure:",squash"`
}

type subscriptionConfig struct {
	Code       string `mapstructure:"code"`
	Subscriber string `mapstructure:"subscriber"`
}

type providerFile struct {
	ID            string                      `mapstructure:"id"`
	Subscribers   map[string]subscriberConfig `mapstructure:"subscribers"`
	Subscriptions []subscriptionConfig        `mapstructure:"subscriptions"`
}

// LoadProvider reads a YAML, JSON or TOML file and builds the provider it
// declares. Each event code maps to exactly one named subscriber.
//
//	id: signup.subscriptions
//	subscribers:
//	  audit:
//	    type: webhook
//	    url: https://audit.internal/events
//	subscriptions:
//	  - code: UserRegistered
//	    subscriber: audit
func LoadProvider(path string, logger *slog.Logger) (*bus.StaticProvider, error) {
	logger = logging.OrDefault(logger)

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read subscription file %s: %w", path, err)
	}

	var file providerFile
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidProviderFile, path, err)
	}

	provider, err := file.build(logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidProviderFile, path, err)
	}

	logger.Info("subscription file loaded",
		"event", "subscriptions_loaded",
		"module", "internal/subscribers",
		"path", path,
		"group", provider.ProviderID(),
		"subscriptions", len(provider.Subscriptions()),
	)
	return provider, nil
}

func (f providerFile) build(logger *slog.Logger) (*bus.StaticProvider, error) {
	if strings.TrimSpace(f.ID) == "" {
		return nil, errors.New("id is required")
	}

	// viper lowercases map keys, so subscriber names are matched case-insensitively.
	built := make(map[string]bus.Subscriber, len(f.Subscribers))
	for name, sc := range f.Subscribers {
		s, err := newSubscriber(name, sc, logger)
		if err != nil {
			return nil, err
		}
		built[strings.ToLower(name)] = s
	}

	seen := make(map[string]bool, len(f.Subscriptions))
	subs := make([]bus.Subscription, 0, len(f.Subscriptions))
	for i, sc := range f.Subscriptions {
		if sc.Code == "" {
			return nil, fmt.Errorf("subscription %d has no code", i)
		}
		if seen[sc.Code] {
			return nil, fmt.Errorf("duplicate subscription for code %s", sc.Code)
		}
		s, ok := built[strings.ToLower(sc.Subscriber)]
		if !ok {
			return nil, fmt.Errorf("subscription %s references unknown subscriber %q", sc.Code, sc.Subscriber)
		}
		seen[sc.Code] = true
		subs = append(subs, bus.NewSubscription(sc.Code, s))
	}

	return bus.NewStaticProvider(f.ID, subs...), nil
}

func newSubscriber(name string, sc subscriberConfig, logger *slog.Logger) (bus.Subscriber, error) {
	switch strings.ToLower(sc.Type) {
	case TypeLog, "":
		return NewLog(name, logger), nil
	case TypeWebhook:
		return NewWebhook(name, sc.WebhookConfig)
	default:
		return nil, fmt.Errorf("subscriber %s has unsupported type %q", name, sc.Type)
	}
}
