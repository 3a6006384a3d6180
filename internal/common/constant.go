package common

// AppName is used as the TOTP issuer and in user-facing prompts.
const AppName = "GophVault"

// Storage namespaces used by the engine.
const (
	NamespaceVault     = "vault"
	NamespaceDecoy     = "decoy"
	NamespaceSecurity  = "security"
	NamespaceSalt      = "salt"
	NamespaceSettings  = "settings"
	NamespaceRateLimit = "ratelimit"
)

// Namespaces lists every namespace wiped by a full reset.
var Namespaces = []string{
	NamespaceVault,
	NamespaceDecoy,
	NamespaceSecurity,
	NamespaceSalt,
	NamespaceSettings,
	NamespaceRateLimit,
}
