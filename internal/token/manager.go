package token

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/navariltd/disburser/internal/models"
	"github.com/navariltd/disburser/pkg/logging"
)

// Authenticator fetches a fresh bearer token from the gateway.
type Authenticator interface {
	Authenticate(ctx context.Context, settings *models.Settings) (accessToken string, expiresIn time.Duration, err error)
}

// Manager resolves a valid bearer token for a setting, refreshing through
// the gateway when the cache misses. Concurrent refreshes for the same
// setting are collapsed into one gateway call.
type Manager struct {
	store  *Store
	auth   Authenticator
	group  singleflight.Group
	logger logging.Logger
}

// NewManager creates a token manager
func NewManager(store *Store, auth Authenticator, logger logging.Logger) *Manager {
	return &Manager{
		store:  store,
		auth:   auth,
		logger: logger,
	}
}

// GetToken returns a valid bearer token for the setting, fetching and
// caching a new one when no unexpired token exists.
func (m *Manager) GetToken(ctx context.Context, settings *models.Settings) (string, error) {
	cached, err := m.store.GetValidToken(ctx, settings.Name)
	if err == nil {
		return cached.AccessToken, nil
	}
	if !errors.Is(err, models.ErrNoValidToken) {
		return "", err
	}

	result, err, _ := m.group.Do(settings.Name, func() (interface{}, error) {
		// A concurrent caller may have refreshed while we waited.
		if cached, err := m.store.GetValidToken(ctx, settings.Name); err == nil {
			return cached.AccessToken, nil
		}

		m.logger.WithField("setting", settings.Name).Info("No valid cached token, authenticating")

		accessToken, expiresIn, err := m.auth.Authenticate(ctx, settings)
		if err != nil {
			return "", err
		}

		fetchedAt := time.Now()
		token := &models.AccessToken{
			SettingName: settings.Name,
			AccessToken: accessToken,
			FetchedAt:   fetchedAt,
			ExpiresAt:   fetchedAt.Add(expiresIn),
		}
		if err := m.store.Save(ctx, token); err != nil {
			return "", err
		}

		return accessToken, nil
	})
	if err != nil {
		return "", err
	}

	return result.(string), nil
}
