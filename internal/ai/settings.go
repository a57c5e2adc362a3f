package ai

import (
	"context"
	"errors"

	"cognical/internal/repo"
	"cognical/internal/vault"
)

// Setting keys in the ai_settings table. The API key is stored
// vault-encrypted; base URL and model are plain.
const (
	SettingBaseURL = "provider_base_url"
	SettingModel   = "model"
	SettingAPIKey  = "api_key"
)

// FromSettings builds the provider the stored settings describe. The HTTP
// provider is selected only when a base URL exists and the stored key
// decrypts; anything else falls back to the offline heuristic.
func FromSettings(ctx context.Context, r repo.Repo, v *vault.Vault) Provider {
	baseURL, err := r.GetAISetting(ctx, SettingBaseURL)
	if err != nil || baseURL == "" {
		return HeuristicProvider{}
	}
	sealed, err := r.GetAISetting(ctx, SettingAPIKey)
	if err != nil || sealed == "" {
		return HeuristicProvider{}
	}
	apiKey, err := v.Decrypt(sealed)
	if err != nil {
		return HeuristicProvider{}
	}
	model, err := r.GetAISetting(ctx, SettingModel)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return HeuristicProvider{}
	}
	return NewHTTPProvider(baseURL, apiKey, model)
}

// StoreAPIKey seals the key with the vault and persists it.
func StoreAPIKey(ctx context.Context, r repo.Repo, v *vault.Vault, apiKey, now string) error {
	sealed, err := v.Encrypt(apiKey)
	if err != nil {
		return err
	}
	return r.SetAISetting(ctx, SettingAPIKey, sealed, now)
}
