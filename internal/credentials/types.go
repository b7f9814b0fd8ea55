package credentials

// Section names used by the built-in providers.
const (
	SectionClearPass  = "clearpass"
	SectionController = "controller"
	SectionSwitch     = "switch"
)

// Keys of a store section. They match the YAML tags of Credentials.
const (
	KeyAPIHost      = "api_host"
	KeyClientID     = "client_id"
	KeyClientSecret = "client_secret"
	KeyUsername     = "username"
	KeyPassword     = "password"
	KeyGrantType    = "grant_type"
	KeyRefreshToken = "refresh_token"
	KeyAPIVersion   = "api_version"
)

// Credentials is the (possibly partial) set of values needed to log in to an
// Aruba product. Empty fields are unset.
type Credentials struct {
	APIHost      string `yaml:"api_host,omitempty" json:"api_host,omitempty"`
	ClientID     string `yaml:"client_id,omitempty" json:"client_id,omitempty"`
	ClientSecret string `yaml:"client_secret,omitempty" json:"client_secret,omitempty"`
	Username     string `yaml:"username,omitempty" json:"username,omitempty"`
	Password     string `yaml:"password,omitempty" json:"password,omitempty"`
	GrantType    string `yaml:"grant_type,omitempty" json:"grant_type,omitempty"`
	RefreshToken string `yaml:"refresh_token,omitempty" json:"refresh_token,omitempty"`
	APIVersion   string `yaml:"api_version,omitempty" json:"api_version,omitempty"`
}

// Section holds the stored defaults of one provider. A missing key is unset.
type Section map[string]string

// Merge overlays the non-empty fields of given on top of defaults.
func Merge(given Credentials, defaults Section) Credentials {
	pick := func(value, key string) string {
		if value != "" {
			return value
		}
		return defaults[key]
	}
	return Credentials{
		APIHost:      pick(given.APIHost, KeyAPIHost),
		ClientID:     pick(given.ClientID, KeyClientID),
		ClientSecret: pick(given.ClientSecret, KeyClientSecret),
		Username:     pick(given.Username, KeyUsername),
		Password:     pick(given.Password, KeyPassword),
		GrantType:    pick(given.GrantType, KeyGrantType),
		RefreshToken: pick(given.RefreshToken, KeyRefreshToken),
		APIVersion:   pick(given.APIVersion, KeyAPIVersion),
	}
}

// Section converts the non-empty fields into a store section.
func (c Credentials) Section() Section {
	s := Section{}
	set := func(key, value string) {
		if value != "" {
			s[key] = value
		}
	}
	set(KeyAPIHost, c.APIHost)
	set(KeyClientID, c.ClientID)
	set(KeyClientSecret, c.ClientSecret)
	set(KeyUsername, c.Username)
	set(KeyPassword, c.Password)
	set(KeyGrantType, c.GrantType)
	set(KeyRefreshToken, c.RefreshToken)
	set(KeyAPIVersion, c.APIVersion)
	return s
}
