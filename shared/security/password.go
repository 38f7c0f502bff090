package security

import (
	"fmt"

	"github.com/matthewhartstonge/argon2"
	"github.com/rs/zerolog"
)

// PasswordHasherConfig holds the Argon2id cost parameters.
type PasswordHasherConfig struct {
	MemoryCost  uint32 `env:"ARGON2_MEMORY_KB"   envDefault:"65536"`
	TimeCost    uint32 `env:"ARGON2_TIME_COST"   envDefault:"3"`
	Parallelism uint8  `env:"ARGON2_PARALLELISM" envDefault:"4"`
	SaltLength  uint32 `env:"ARGON2_SALT_LENGTH" envDefault:"16"`
	HashLength  uint32 `env:"ARGON2_HASH_LENGTH" envDefault:"32"`
}

// Validate checks that the parameters are strong enough to be used for password storage.
func (c PasswordHasherConfig) Validate() error {
	if c.MemoryCost < 8*1024 {
		return fmt.Errorf("ARGON2_MEMORY_KB must be at least 8192")
	}
	if c.TimeCost < 1 {
		return fmt.Errorf("ARGON2_TIME_COST must be at least 1")
	}
	if c.Parallelism < 1 {
		return fmt.Errorf("ARGON2_PARALLELISM must be at least 1")
	}
	if c.SaltLength < 16 {
		return fmt.Errorf("ARGON2_SALT_LENGTH must be at least 16")
	}
	if c.HashLength < 16 {
		return fmt.Errorf("ARGON2_HASH_LENGTH must be at least 16")
	}

	return nil
}

// PasswordHasher hashes and verifies passwords with Argon2id.
// The encoded output embeds the algorithm, version, parameters and salt,
// so a stored hash can be verified without any other state.
type PasswordHasher struct {
	config argon2.Config
	logger *zerolog.Logger
}

// NewPasswordHasher creates a new PasswordHasher with the given parameters.
func NewPasswordHasher(cfg PasswordHasherConfig, logger *zerolog.Logger) *PasswordHasher {
	argonCfg := argon2.DefaultConfig()
	argonCfg.Mode = argon2.ModeArgon2id
	argonCfg.MemoryCost = cfg.MemoryCost
	argonCfg.TimeCost = cfg.TimeCost
	argonCfg.Parallelism = cfg.Parallelism
	argonCfg.SaltLength = cfg.SaltLength
	argonCfg.HashLength = cfg.HashLength

	return &PasswordHasher{
		config: argonCfg,
		logger: logger,
	}
}

// Hash returns the encoded Argon2id hash of the plaintext password.
func (h *PasswordHasher) Hash(password string) (string, error) {
	encoded, err := h.config.HashEncoded([]byte(password))
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	return string(encoded), nil
}

// Verify reports whether the password matches the encoded hash.
// A malformed hash is logged and reported as a mismatch.
func (h *PasswordHasher) Verify(encodedHash, password string) bool {
	ok, err := argon2.VerifyEncoded([]byte(password), []byte(encodedHash))
	if err != nil {
		h.logger.Warn().Err(err).Msg("password verification failed")
		return false
	}

	return ok
}
