package security

import (
	"regexp"
	"strings"

	"dbgateway/internal/core"
)

// CredentialValidator checks connection parameters before any connect
// attempt. Pure function of its input, no I/O.
type CredentialValidator struct{}

func NewCredentialValidator() *CredentialValidator { return &CredentialValidator{} }

var (
	usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_\-.@]+$`)
	databaseRe = regexp.MustCompile(`^[a-zA-Z0-9_\-]+$`)
	hostRe     = regexp.MustCompile(`^[a-zA-Z0-9_\-.:\[\]]+$`)
)

// suspiciousPathFragments block sqlite paths that reach into system
// locations or use traversal tricks.
var suspiciousPathFragments = []string{
	"..", "~", "$",
	"/etc/", "/proc/", "/sys/", "/dev/", "/root/",
	"c:\\windows", "c:\\system32",
	"/var/lib/mysql/", "/var/lib/postgresql/",
}

// Validate enforces the per-kind required-field set and basic hygiene on
// every field. Returns a *core.CredentialError on the first violation.
func (v *CredentialValidator) Validate(creds core.Credentials) error {
	switch creds.Kind {
	case core.KindSQLite:
		return v.validatePath(creds.Path)
	case core.KindPostgres, core.KindMySQL, core.KindDocument:
		return v.validateNetwork(creds)
	default:
		return &core.CredentialError{Field: "kind", Reason: "unsupported database kind"}
	}
}

func (v *CredentialValidator) validateNetwork(creds core.Credentials) error {
	if creds.Host == "" {
		return &core.CredentialError{Field: "host", Reason: "required"}
	}
	if len(creds.Host) > 255 || !hostRe.MatchString(creds.Host) {
		return &core.CredentialError{Field: "host", Reason: "malformed host"}
	}
	if strings.HasSuffix(strings.ToLower(creds.Host), ".onion") {
		return &core.CredentialError{Field: "host", Reason: "host not permitted"}
	}

	if creds.Port != 0 {
		if creds.Port < 1 || creds.Port > 65535 {
			return &core.CredentialError{Field: "port", Reason: "port must be between 1 and 65535"}
		}
		if creds.Port < 1024 {
			return &core.CredentialError{Field: "port", Reason: "ports below 1024 are reserved"}
		}
	}

	if creds.Username == "" {
		return &core.CredentialError{Field: "username", Reason: "required"}
	}
	if len(creds.Username) > 100 || !usernameRe.MatchString(creds.Username) {
		return &core.CredentialError{Field: "username", Reason: "malformed username"}
	}

	if creds.Secret == "" {
		return &core.CredentialError{Field: "secret", Reason: "required"}
	}
	if len(creds.Secret) > 200 {
		return &core.CredentialError{Field: "secret", Reason: "secret too long"}
	}
	for _, r := range creds.Secret {
		if r < 32 && r != '\t' {
			return &core.CredentialError{Field: "secret", Reason: "secret contains control characters"}
		}
	}

	if creds.Database == "" {
		return &core.CredentialError{Field: "database", Reason: "required"}
	}
	if len(creds.Database) > 100 || !databaseRe.MatchString(creds.Database) {
		return &core.CredentialError{Field: "database", Reason: "malformed database name"}
	}

	return nil
}

func (v *CredentialValidator) validatePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return &core.CredentialError{Field: "path", Reason: "required"}
	}
	if len(path) > 512 {
		return &core.CredentialError{Field: "path", Reason: "path too long"}
	}
	lower := strings.ToLower(path)
	for _, frag := range suspiciousPathFragments {
		if strings.Contains(lower, frag) {
			return &core.CredentialError{Field: "path", Reason: "suspicious path"}
		}
	}
	return nil
}
