package internal

import (
	"github.com/starford/othala/internal/identity"
	"github.com/starford/othala/internal/relay"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config  *Config
	keyring *identity.Keyring
	relays  []relay.Client
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithKeyring injects an identity instead of loading the keystore.
// Tests use it to run against a generated keyring.
func WithKeyring(k *identity.Keyring) Option {
	return func(a *application) {
		a.keyring = k
	}
}

// WithRelayClients injects relay clients instead of building HTTP
// clients from the configured URLs.
func WithRelayClients(clients []relay.Client) Option {
	return func(a *application) {
		a.relays = clients
	}
}
