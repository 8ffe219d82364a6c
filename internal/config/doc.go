// Package config loads the metricdeck configuration file.
//
// # Configuration Discovery
//
// Load follows this resolution order:
//
//  1. If a path is explicitly provided, use it
//  2. Otherwise, use ~/.config/metricdeck/config.toml
//  3. If the file doesn't exist, fall back to defaults
//  4. If the file exists but fields are missing or empty, use defaults
//
// Command-line flags and METRICDECK_* environment variables are applied on top
// of the loaded Config by the cli package.
//
// # TOML Format
//
//	api_url = "http://localhost:5000/api"
//	request_timeout_seconds = 30
//	refresh_seconds = 60
//	storage = "file"            # file, sqlite or memory
//	storage_path = "~/.local/share/metricdeck/session.toml"
//	download_dir = "~/Downloads"
//	log_file = "~/.local/state/metricdeck/metricdeck.log"
//	log_level = "info"
//
//	[[cards]]
//	name = "total_ativacoes"
//	title = "Total de Ativações"
//	format = "number"           # number, currency, percent or kwh
//
//	[preview]
//	column_order = ["codigo", "nome", "cidade"]
//
// Every field is optional. Tilde expansion is applied to path fields. When no
// cards are listed, DefaultCards is used.
//
// # Error Handling
//
// Load returns errors for path expansion failures, read errors other than a
// missing file, TOML parse errors, an unknown storage backend and invalid
// card entries.
package config
