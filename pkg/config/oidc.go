package config

import (
	"io/fs"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

type OIDCProvider struct {
	Name         string   `toml:"name"`
	DisplayName  string   `toml:"display_name"`
	IssuerURL    string   `toml:"issuer_url"`
	ClientID     string   `toml:"client_id"`
	ClientSecret string   `toml:"client_secret"`
	Scopes       []string `toml:"scopes"`
}

type OIDCConfig struct {
	Providers []OIDCProvider `toml:"providers"`
}

// LoadOIDC reads the OIDC provider definitions from a TOML file. A missing
// file is not an error; it just means password login only.
func LoadOIDC(path string) (*OIDCConfig, error) {
	if path == "" {
		return &OIDCConfig{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &OIDCConfig{}, nil
		}
		return nil, errors.WithStack(err)
	}

	cfg := &OIDCConfig{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, errors.WithStack(err)
	}

	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		if p.Name == "" || p.IssuerURL == "" || p.ClientID == "" {
			return nil, errors.Errorf("oidc provider %d is missing name, issuer_url or client_id", i)
		}
		if p.DisplayName == "" {
			p.DisplayName = p.Name
		}
		if len(p.Scopes) == 0 {
			p.Scopes = []string{"openid", "profile", "email"}
		}
	}

	return cfg, nil
}
