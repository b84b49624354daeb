package internal

import "os"

// SecretManager resolves secret references from config. Secrets can be
// stored encrypted in the config file, set as environment variables or
// left in plain text.
type SecretManager struct {
	Key     string
	Secrets map[string]string // decrypted secrets
}

func NewSecretManager(key string) *SecretManager {
	return &SecretManager{Key: key, Secrets: map[string]string{}}
}

// LoadEncryptedSecrets decrypts secrets from the config file into the
// internal store.
func (sm *SecretManager) LoadEncryptedSecrets(secrets map[string]string) error {
	for k, v := range secrets {
		decrypted, err := DecryptString(sm.Key, v)
		if err != nil {
			return err
		}
		sm.Secrets[k] = decrypted
	}
	return nil
}

// LoadSecrets loads plain-text secrets into the internal store.
func (sm *SecretManager) LoadSecrets(secrets map[string]string) {
	for k, v := range secrets {
		sm.Secrets[k] = v
	}
}

// GetSecret resolves key against the internal store, then the
// environment. An unresolved key is returned as-is, allowing plain-text
// values in config.
func (sm *SecretManager) GetSecret(key string) string {
	secret, ok := sm.Secrets[key]
	if !ok {
		secret = os.Getenv(key)
		if secret == "" {
			return key
		}
		return secret
	}
	return secret
}

// GetEncryptedSecrets returns the store re-encrypted for writing back to
// a config file.
func (sm *SecretManager) GetEncryptedSecrets() (map[string]string, error) {
	encryptedSecrets := map[string]string{}
	var err error
	for k, v := range sm.Secrets {
		encryptedSecrets[k], err = EncryptString(sm.Key, v)
		if err != nil {
			return nil, err
		}
	}
	return encryptedSecrets, err
}
