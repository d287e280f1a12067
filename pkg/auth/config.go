package auth

// Config contains the fallback API credentials per provider.
type Config struct {
	GitHub    ProviderConfig `yaml:"github"`
	GitLab    ProviderConfig `yaml:"gitlab"`
	Bitbucket ProviderConfig `yaml:"bitbucket"`
}

// ProviderConfig contains API access settings for a provider. Token is used
// for managers that carry no token of their own.
type ProviderConfig struct {
	Token   string `yaml:"token"`
	BaseURL string `yaml:"base_url"`
}

func (c Config) provider(name string) (ProviderConfig, bool) {
	switch name {
	case "github":
		return c.GitHub, true
	case "gitlab":
		return c.GitLab, true
	case "bitbucket":
		return c.Bitbucket, true
	default:
		return ProviderConfig{}, false
	}
}
