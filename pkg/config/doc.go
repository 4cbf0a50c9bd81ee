// Package config loads typed configuration structs from environment
// variables.
//
// It wraps github.com/joho/godotenv and github.com/caarlos0/env/v11: the
// default .env file (when present) is loaded exactly once per process, then
// struct fields are parsed from the environment via `env` tags. Every
// rolloutkit package that needs configuration exposes an env-tagged Config
// struct meant to be loaded through this package.
package config
