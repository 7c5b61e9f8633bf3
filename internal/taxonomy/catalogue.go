package taxonomy

import (
	"strings"
)

// Component is an entry of the declared-vs-detected component catalogue.
type Component struct {
	Key     string
	Name    string
	Aliases []string
}

// Catalogue is the fixed list of components checked against the intake form.
var Catalogue = []Component{
	{Key: "venafi", Name: "Venafi"},
	{Key: "redis", Name: "Redis"},
	{Key: "channel_secure_pingfed", Name: "Channel Secure / PingFed", Aliases: []string{"channel secure", "pingfed", "ping federate"}},
	{Key: "nas_smb", Name: "NAS / SMB", Aliases: []string{"nas", "smb"}},
	{Key: "smtp", Name: "SMTP", Aliases: []string{"email", "mail server"}},
	{Key: "autosys", Name: "AutoSys"},
	{Key: "mtls_mutual_auth", Name: "MTLS / Mutual Auth / Hard Rock pattern", Aliases: []string{"mtls", "mutual auth", "hard rock", "hardrock"}},
	{Key: "ndm", Name: "NDM", Aliases: []string{"connect:direct", "connect direct"}},
	{Key: "legacy_jks_file", Name: "Legacy JKS files", Aliases: []string{"jks", "keystore"}},
	{Key: "soap_calls", Name: "SOAP Calls", Aliases: []string{"soap"}},
	{Key: "rest_api", Name: "REST API", Aliases: []string{"rest"}},
	{Key: "apigee", Name: "APIGEE"},
	{Key: "kafka", Name: "KAFKA"},
	{Key: "ibm_mq", Name: "IBM MQ", Aliases: []string{"mq", "websphere mq"}},
	{Key: "ldap", Name: "LDAP", Aliases: []string{"active directory"}},
}

// normalizeName lowers s and folds every run of punctuation into one space.
func normalizeName(s string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == ':' {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space && b.Len() > 0 {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

// MatchComponent resolves a free-text component name onto the catalogue.
// Exact key, name or alias matches win; otherwise a substring match in either
// direction is accepted.
func MatchComponent(name string) (Component, bool) {
	n := normalizeName(name)
	if n == "" {
		return Component{}, false
	}
	for _, c := range Catalogue {
		if n == normalizeName(c.Key) || n == normalizeName(c.Name) {
			return c, true
		}
		for _, a := range c.Aliases {
			if n == a {
				return c, true
			}
		}
	}
	for _, c := range Catalogue {
		candidates := append([]string{normalizeName(c.Key), normalizeName(c.Name)}, c.Aliases...)
		for _, cand := range candidates {
			if len(cand) < 3 || len(n) < 3 {
				continue
			}
			if strings.Contains(n, cand) || strings.Contains(cand, n) {
				return c, true
			}
		}
	}
	return Component{}, false
}

// CatalogueNames returns the display names in catalogue order.
func CatalogueNames() []string {
	out := make([]string, len(Catalogue))
	for i, c := range Catalogue {
		out[i] = c.Name
	}
	return out
}
