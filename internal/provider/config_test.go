package provider

import "testing"

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		wantErr any // nil, or a pointer to the expected error type
	}{
		{"api_key ok", Config{Method: AuthAPIKey, APIKey: "sk-test"}, nil},
		{"api_key missing", Config{Method: AuthAPIKey}, &CredentialsNotFoundError{}},
		{"sa_file ok", Config{Method: AuthServiceAccountFile, ServiceAccountPath: "/p.json", Project: "proj"}, nil},
		{"sa_file missing path", Config{Method: AuthServiceAccountFile, Project: "proj"}, &CredentialsNotFoundError{}},
		{"sa_file missing project", Config{Method: AuthServiceAccountFile, ServiceAccountPath: "/p.json"}, &ProjectMisconfiguredError{}},
		{"adc ok", Config{Method: AuthADC, Project: "proj"}, nil},
		{"adc missing project", Config{Method: AuthADC}, &ProjectMisconfiguredError{}},
		{"impersonation ok adc", Config{Method: AuthImpersonation, TargetServiceAccount: "sa@proj.iam", Project: "proj", ImpersonationSource: ImpersonationSourceADC}, nil},
		{"impersonation missing target", Config{Method: AuthImpersonation, Project: "proj", ImpersonationSource: ImpersonationSourceADC}, &ImpersonationFailedError{}},
		{"impersonation sa_file missing creds", Config{Method: AuthImpersonation, TargetServiceAccount: "sa@proj.iam", Project: "proj", ImpersonationSource: ImpersonationSourceSAFile}, &CredentialsNotFoundError{}},
		{"unknown method", Config{Method: "bogus"}, &CredentialsInvalidError{}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.cfg.Validate()
			if c.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error of type %T", c.wantErr)
			}
			switch c.wantErr.(type) {
			case *CredentialsNotFoundError:
				if _, ok := err.(*CredentialsNotFoundError); !ok {
					t.Errorf("err = %T, want *CredentialsNotFoundError", err)
				}
			case *ProjectMisconfiguredError:
				if _, ok := err.(*ProjectMisconfiguredError); !ok {
					t.Errorf("err = %T, want *ProjectMisconfiguredError", err)
				}
			case *ImpersonationFailedError:
				if _, ok := err.(*ImpersonationFailedError); !ok {
					t.Errorf("err = %T, want *ImpersonationFailedError", err)
				}
			case *CredentialsInvalidError:
				if _, ok := err.(*CredentialsInvalidError); !ok {
					t.Errorf("err = %T, want *CredentialsInvalidError", err)
				}
			}
		})
	}
}

func TestConfigErrorsCarryRemediation(t *testing.T) {
	var errs = []ConfigError{
		&CredentialsNotFoundError{Method: AuthAPIKey, Detail: "x"},
		&CredentialsInvalidError{Detail: "x"},
		&CredentialsPermissionDeniedError{Detail: "x"},
		&ProjectMisconfiguredError{Detail: "x"},
		&ImpersonationFailedError{Detail: "x"},
	}
	for _, e := range errs {
		if e.Remediation() == "" {
			t.Errorf("%T.Remediation() is empty", e)
		}
		if e.Error() == "" {
			t.Errorf("%T.Error() is empty", e)
		}
	}
}
