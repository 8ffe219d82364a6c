package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Card formats.
const (
	FormatNumber   = "number"
	FormatCurrency = "currency"
	FormatPercent  = "percent"
	FormatKWh      = "kwh"
)

// Storage backends.
const (
	StorageFile   = "file"
	StorageSQLite = "sqlite"
	StorageMemory = "memory"
)

// Card is one dashboard card.
type Card struct {
	Name   string `toml:"name"`
	Title  string `toml:"title"`
	Format string `toml:"format"`
}

// Config is the resolved metricdeck configuration.
type Config struct {
	APIURL          string
	RequestTimeout  time.Duration
	RefreshInterval time.Duration
	Storage         string
	StoragePath     string
	DownloadDir     string
	LogFile         string
	LogLevel        string
	Cards           []Card
	PreviewColumns  []string
}

const (
	defaultConfigPath      = "~/.config/metricdeck/config.toml"
	defaultAPIURL          = "http://localhost:5000/api"
	defaultRequestTimeout  = 30
	defaultRefreshInterval = 60
	defaultFileStorePath   = "~/.local/share/metricdeck/session.toml"
	defaultSQLiteStorePath = "~/.local/share/metricdeck/session.db"
	defaultDownloadDir     = "~/Downloads"
	defaultLogFile         = "~/.local/state/metricdeck/metricdeck.log"
	defaultLogLevel        = "info"
)

// DefaultCards is the card set used when the config lists none.
var DefaultCards = []Card{
	{Name: "total_ativacoes", Title: "Total de Ativações", Format: FormatNumber},
	{Name: "clientes_ativos", Title: "Clientes Ativos", Format: FormatNumber},
	{Name: "consumo_kwh", Title: "Consumo Total", Format: FormatKWh},
	{Name: "faturamento", Title: "Faturamento", Format: FormatCurrency},
	{Name: "economia_gerada", Title: "Economia Gerada", Format: FormatCurrency},
	{Name: "ticket_medio", Title: "Ticket Médio", Format: FormatCurrency},
	{Name: "taxa_inadimplencia", Title: "Taxa Inadimplência", Format: FormatPercent},
	{Name: "novos_clientes_mes", Title: "Novos Clientes", Format: FormatNumber},
}

type rawConfig struct {
	APIURL          string `toml:"api_url"`
	RequestTimeout  int    `toml:"request_timeout_seconds"`
	RefreshInterval int    `toml:"refresh_seconds"`
	Storage         string `toml:"storage"`
	StoragePath     string `toml:"storage_path"`
	DownloadDir     string `toml:"download_dir"`
	LogFile         string `toml:"log_file"`
	LogLevel        string `toml:"log_level"`
	Cards           []Card `toml:"cards"`
	Preview         struct {
		ColumnOrder []string `toml:"column_order"`
	} `toml:"preview"`
}

// Load reads the config at path, or the default location when path is empty.
// A missing file yields the defaults.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	var raw rawConfig
	file, err := os.Open(resolved)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return raw.resolve()
	case err != nil:
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return raw.resolve()
}

// DefaultPath returns the expanded default config location.
func DefaultPath() string {
	return mustExpand(defaultConfigPath)
}

func (r rawConfig) resolve() (Config, error) {
	cfg := Config{
		APIURL:          orDefault(r.APIURL, defaultAPIURL),
		RequestTimeout:  seconds(r.RequestTimeout, defaultRequestTimeout),
		RefreshInterval: seconds(r.RefreshInterval, defaultRefreshInterval),
		Storage:         strings.ToLower(orDefault(r.Storage, StorageFile)),
		LogLevel:        strings.ToLower(orDefault(r.LogLevel, defaultLogLevel)),
	}

	switch cfg.Storage {
	case StorageFile, StorageSQLite, StorageMemory:
	default:
		return Config{}, fmt.Errorf("unknown storage %q (want file, sqlite or memory)", cfg.Storage)
	}

	storePath := defaultFileStorePath
	if cfg.Storage == StorageSQLite {
		storePath = defaultSQLiteStorePath
	}
	cfg.StoragePath = mustExpand(orDefault(r.StoragePath, storePath))
	cfg.DownloadDir = mustExpand(orDefault(r.DownloadDir, defaultDownloadDir))
	cfg.LogFile = mustExpand(orDefault(r.LogFile, defaultLogFile))

	cards, err := resolveCards(r.Cards)
	if err != nil {
		return Config{}, err
	}
	cfg.Cards = cards

	for _, col := range r.Preview.ColumnOrder {
		if col = strings.TrimSpace(col); col != "" {
			cfg.PreviewColumns = append(cfg.PreviewColumns, col)
		}
	}
	return cfg, nil
}

func resolveCards(raw []Card) ([]Card, error) {
	if len(raw) == 0 {
		return append([]Card(nil), DefaultCards...), nil
	}
	seen := make(map[string]bool, len(raw))
	cards := make([]Card, 0, len(raw))
	for i, c := range raw {
		c.Name = strings.TrimSpace(c.Name)
		if c.Name == "" {
			return nil, fmt.Errorf("cards[%d]: name is required", i)
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("cards[%d]: duplicate card %q", i, c.Name)
		}
		seen[c.Name] = true
		c.Title = orDefault(c.Title, c.Name)
		c.Format = strings.ToLower(orDefault(c.Format, FormatNumber))
		switch c.Format {
		case FormatNumber, FormatCurrency, FormatPercent, FormatKWh:
		default:
			return nil, fmt.Errorf("cards[%d]: unknown format %q", i, c.Format)
		}
		cards = append(cards, c)
	}
	return cards, nil
}

// CardNames lists the configured card names in order.
func (c Config) CardNames() []string {
	names := make([]string, len(c.Cards))
	for i, card := range c.Cards {
		names[i] = card.Name
	}
	return names
}

// Card looks up a configured card by name.
func (c Config) Card(name string) (Card, bool) {
	for _, card := range c.Cards {
		if card.Name == name {
			return card, true
		}
	}
	return Card{}, false
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}

func seconds(value, fallback int) time.Duration {
	if value <= 0 {
		value = fallback
	}
	return time.Duration(value) * time.Second
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

// ExpandPath resolves a leading ~ and makes path absolute.
func ExpandPath(path string) (string, error) {
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
