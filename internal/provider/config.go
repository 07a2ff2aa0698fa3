package provider

// AuthMethod discriminates the Config union (spec §6).
type AuthMethod string

const (
	AuthAPIKey             AuthMethod = "api_key"
	AuthServiceAccountFile AuthMethod = "service_account_file"
	AuthADC                AuthMethod = "adc"
	AuthImpersonation      AuthMethod = "impersonation"
)

// ImpersonationSource names the credential Config.Impersonation borrows
// before assuming the target service account.
type ImpersonationSource string

const (
	ImpersonationSourceADC    ImpersonationSource = "adc"
	ImpersonationSourceSAFile ImpersonationSource = "sa_file"
)

// Config is the discriminated provider-configuration record from spec §6.
// Only the fields relevant to Method are meaningful; Validate checks that
// the required subset is populated before a provider attempts
// Initialize.
type Config struct {
	Method AuthMethod

	// APIKey: Method == AuthAPIKey.
	APIKey string

	// ServiceAccountFile: Method == AuthServiceAccountFile.
	ServiceAccountPath string
	Project            string
	Location           string

	// ADC: Method == AuthADC (Project/Location shared with above).

	// Impersonation: Method == AuthImpersonation.
	TargetServiceAccount string
	ImpersonationSource  ImpersonationSource
	CredentialsPath      string // meaningful when ImpersonationSource == sa_file

	// BaseURL overrides the provider's default API endpoint, e.g. for a
	// self-hosted gateway or a proxy. Optional for every Method.
	BaseURL string
}

// Validate checks that Config carries the fields its Method requires,
// returning a typed error (never a bare fmt.Errorf) so callers can match
// on error type per spec §7.
func (c Config) Validate() error {
	switch c.Method {
	case AuthAPIKey:
		if c.APIKey == "" {
			return &CredentialsNotFoundError{Method: c.Method, Detail: "api_key is empty"}
		}
	case AuthServiceAccountFile:
		if c.ServiceAccountPath == "" {
			return &CredentialsNotFoundError{Method: c.Method, Detail: "service_account_file path is empty"}
		}
		if c.Project == "" {
			return &ProjectMisconfiguredError{Detail: "project is required for service_account_file auth"}
		}
	case AuthADC:
		if c.Project == "" {
			return &ProjectMisconfiguredError{Detail: "project is required for adc auth"}
		}
	case AuthImpersonation:
		if c.TargetServiceAccount == "" {
			return &ImpersonationFailedError{Detail: "target_service_account is required"}
		}
		if c.Project == "" {
			return &ProjectMisconfiguredError{Detail: "project is required for impersonation auth"}
		}
		switch c.ImpersonationSource {
		case ImpersonationSourceADC:
		case ImpersonationSourceSAFile:
			if c.CredentialsPath == "" {
				return &CredentialsNotFoundError{Method: c.Method, Detail: "credentials_path is required when impersonation source is sa_file"}
			}
		default:
			return &ImpersonationFailedError{Detail: "impersonation source must be \"adc\" or \"sa_file\""}
		}
	default:
		return &CredentialsInvalidError{Detail: "unknown auth method: " + string(c.Method)}
	}
	return nil
}
