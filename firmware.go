package aflib

import (
	"context"
	"errors"
	"fmt"
)

// Dependencies are handed to a Firmware at Init.
type Dependencies struct {
	Client   *Client
	Registry *AttributeRegistry
	Profile  *Profile // nil when no profile file exists
	Logger   Logger
	Clock    Clock
}

// Firmware is the lifecycle interface edge applications implement to be
// driven by Run.
type Firmware interface {
	// Identity
	ID() string
	Version() string

	// Lifecycle
	Init(ctx context.Context, deps Dependencies) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	// HandleSet is the firmware's verdict on a service-originated
	// attribute write (see SetHandler for async handling).
	HandleSet(attrID uint16, value []byte) bool

	// HandleNotify receives attribute value notifications.
	HandleNotify(attrID uint16, value []byte)
}

// Run wires a Firmware to hubby: loads the profile, builds the client,
// registers handlers, and blocks until ctx is done. A missing profile at
// the default location is tolerated; an explicitly configured path must
// exist.
func Run(ctx context.Context, fw Firmware, cfg Config) error {
	cfg = cfg.withDefaults()
	log := cfg.Logger

	profile, err := LoadProfile(cfg.ProfilePath)
	if err != nil {
		if cfg.ProfilePath != "" || !errors.Is(err, StatusFileNotFound) {
			return fmt.Errorf("firmware %s: %w", fw.ID(), err)
		}
		log.Warn("no profile at default location, continuing without one")
		profile = nil
	}

	client, err := NewClient(cfg)
	if err != nil {
		return fmt.Errorf("firmware %s: %w", fw.ID(), err)
	}
	if profile != nil {
		client.AttachProfile(profile)
	}
	client.OnSet(fw.HandleSet)
	client.OnNotify(fw.HandleNotify)

	deps := Dependencies{
		Client:   client,
		Registry: client.Registry(),
		Profile:  profile,
		Logger:   log,
		Clock:    cfg.Clock,
	}
	if err := fw.Init(ctx, deps); err != nil {
		return fmt.Errorf("firmware %s: init: %w", fw.ID(), err)
	}

	if err := client.Start(ctx); err != nil {
		return fmt.Errorf("firmware %s: %w", fw.ID(), err)
	}
	defer client.Stop(context.Background())

	if err := fw.Start(ctx); err != nil {
		if stopErr := fw.Stop(context.Background()); stopErr != nil {
			log.Error("firmware stop failed", "id", fw.ID(), "err", stopErr.Error())
		}
		return fmt.Errorf("firmware %s: start: %w", fw.ID(), err)
	}
	log.Info("firmware running", "id", fw.ID(), "version", fw.Version())

	<-ctx.Done()

	if err := fw.Stop(context.Background()); err != nil {
		log.Error("firmware stop failed", "id", fw.ID(), "err", err.Error())
	}
	return nil
}
