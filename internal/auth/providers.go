package auth

import (
	"fmt"

	"golang.org/x/oauth2"

	"github.com/hitoshi/murmur/internal/model"
)

// ProviderConfig は1つのIdPの設定。
// AuthURL/TokenURLが空の場合は既知のプロバイダーの既定エンドポイントを使用する。
// テストでは両URLを上書きしてモックIdPに向けることができる。
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	Scopes       []string
	BrokerID     string // Identity Brokerに渡すプロバイダー識別子（例: "google.com"）
}

// Provider は登録済みのIdPを表す。
type Provider struct {
	ID       string
	BrokerID string
	OAuth    *oauth2.Config
}

// Registry はID指定でIdPを引けるプロバイダーレジストリ。
// 起動時に構築し、以降は読み取り専用として扱う。
type Registry struct {
	providers map[string]*Provider
}

// 既知プロバイダーの既定エンドポイントとBroker識別子。
var providerDefaults = map[string]ProviderConfig{
	"google": {
		AuthURL:  "https://accounts.google.com/o/oauth2/v2/auth",
		TokenURL: "https://oauth2.googleapis.com/token",
		Scopes:   []string{"openid", "email", "profile"},
		BrokerID: "google.com",
	},
	"github": {
		AuthURL:  "https://github.com/login/oauth/authorize",
		TokenURL: "https://github.com/login/oauth/access_token",
		Scopes:   []string{"read:user"},
		BrokerID: "github.com",
	},
}

// NewRegistry はプロバイダーレジストリを構築する。
// configsのキーがプロバイダーIDとなり、コールバックURLは
// {baseURL}/auth/{id}/callback に固定される。
func NewRegistry(baseURL string, configs map[string]ProviderConfig) *Registry {
	providers := make(map[string]*Provider, len(configs))

	for id, cfg := range configs {
		if def, ok := providerDefaults[id]; ok {
			if cfg.AuthURL == "" {
				cfg.AuthURL = def.AuthURL
			}
			if cfg.TokenURL == "" {
				cfg.TokenURL = def.TokenURL
			}
			if len(cfg.Scopes) == 0 {
				cfg.Scopes = def.Scopes
			}
			if cfg.BrokerID == "" {
				cfg.BrokerID = def.BrokerID
			}
		}

		providers[id] = &Provider{
			ID:       id,
			BrokerID: cfg.BrokerID,
			OAuth: &oauth2.Config{
				ClientID:     cfg.ClientID,
				ClientSecret: cfg.ClientSecret,
				RedirectURL:  fmt.Sprintf("%s/auth/%s/callback", baseURL, id),
				Scopes:       cfg.Scopes,
				Endpoint: oauth2.Endpoint{
					AuthURL:  cfg.AuthURL,
					TokenURL: cfg.TokenURL,
				},
			},
		}
	}

	return &Registry{providers: providers}
}

// Lookup は指定IDのプロバイダーを返す。
// 未登録のIDに対してはUNKNOWN_PROVIDERエラーを返す。
func (r *Registry) Lookup(id string) (*Provider, error) {
	provider, ok := r.providers[id]
	if !ok {
		return nil, model.NewUnknownProviderError(id)
	}
	return provider, nil
}
