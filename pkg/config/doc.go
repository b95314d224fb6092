// Package config loads typed configuration from environment variables.
//
// It wraps github.com/joho/godotenv, which reads an optional .env file, and
// github.com/caarlos0/env/v11, which maps variables onto struct fields by tag.
// Every package that needs settings owns a Config struct:
//
//	type Config struct {
//		AccessToken string `env:"MP_ACCESS_TOKEN,required"`
//		Sandbox     bool   `env:"MP_SANDBOX" envDefault:"false"`
//	}
//
// Load parses each type once and caches it for the process. Parse skips the
// cache, and Reset clears it between tests.
package config
