// Package catalog describes the configured photo sources: base URLs, auxiliary
// endpoints, API keys and timeouts. It loads lazily on first use.
package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pysugar/photopick/internal/initgate"
)

const (
	AuthModeOAuth  = "oauth"
	AuthModeAPIKey = "api_key"

	EndpointCDN     = "cdn"
	EndpointLibrary = "library"

	defaultTimeout = 30 * time.Second
	loadTimeout    = 10 * time.Second
)

var providerIDRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// authModes lists every source this build has an adapter for.
var authModes = map[string]string{
	"googledrive":  AuthModeOAuth,
	"googlephotos": AuthModeOAuth,
	"gumlet":       AuthModeAPIKey,
	"filestack":    AuthModeAPIKey,
}

type fileConfig struct {
	Providers []ProviderConfig `yaml:"providers"`
}

type ProviderConfig struct {
	ID        string            `yaml:"id"`
	Enabled   *bool             `yaml:"enabled"`
	BaseURL   string            `yaml:"base_url"`
	Timeout   string            `yaml:"timeout"`
	Endpoints map[string]string `yaml:"endpoints"`
}

type ProviderInfo struct {
	ID             string            `json:"id"`
	Enabled        bool              `json:"enabled"`
	RuntimeEnabled bool              `json:"runtime_enabled"`
	AuthMode       string            `json:"auth_mode"`
	BaseURL        string            `json:"base_url"`
	Endpoints      map[string]string `json:"endpoints,omitempty"`
	APIKeyEnv      string            `json:"api_key_env,omitempty"`
	BaseURLEnv     string            `json:"base_url_env,omitempty"`
}

// Endpoint returns a named auxiliary URL such as the CDN or library base.
func (p ProviderInfo) Endpoint(name string) string {
	return p.Endpoints[name]
}

type runtimeProvider struct {
	info    ProviderInfo
	apiKey  string
	timeout time.Duration
}

var (
	stateMu      sync.RWMutex
	providerByID map[string]runtimeProvider
	providerList []string

	gate = initgate.New(load, loadTimeout)
)

// Init loads the catalog if it has not been loaded yet and reports the load
// error, if any. Providers are still populated from defaults on error.
func Init(ctx context.Context) error {
	return gate.Wait(ctx)
}

func load(context.Context) error {
	providers, err := loadProviders()

	stateMu.Lock()
	defer stateMu.Unlock()

	providerByID = make(map[string]runtimeProvider)
	providerList = providerList[:0]
	for _, p := range providers {
		providerByID[p.info.ID] = p
		providerList = append(providerList, p.info.ID)
	}
	return err
}

func ensureInitialized() {
	_ = gate.Wait(context.Background())
}

// ResetForTest resets in-memory state so tests can force reload.
func ResetForTest() {
	gate.Reset()
	stateMu.Lock()
	defer stateMu.Unlock()
	providerByID = nil
	providerList = nil
}

// GetProviders returns every configured source in ID order.
func GetProviders() []ProviderInfo {
	ensureInitialized()

	stateMu.RLock()
	defer stateMu.RUnlock()

	result := make([]ProviderInfo, 0, len(providerList))
	for _, id := range providerList {
		if entry, ok := providerByID[id]; ok {
			result = append(result, copyInfo(entry.info))
		}
	}
	return result
}

// GetProvider returns provider metadata by ID.
func GetProvider(id string) (ProviderInfo, bool) {
	info, _, _, ok := GetRuntimeProvider(id)
	return info, ok
}

// GetRuntimeProvider returns provider runtime fields required for upstream calls.
func GetRuntimeProvider(id string) (ProviderInfo, string, time.Duration, bool) {
	ensureInitialized()

	stateMu.RLock()
	defer stateMu.RUnlock()

	entry, ok := providerByID[normalizeProviderID(id)]
	if !ok {
		return ProviderInfo{}, "", 0, false
	}
	return copyInfo(entry.info), entry.apiKey, entry.timeout, true
}

func copyInfo(info ProviderInfo) ProviderInfo {
	if len(info.Endpoints) > 0 {
		cp := make(map[string]string, len(info.Endpoints))
		for k, v := range info.Endpoints {
			cp[k] = v
		}
		info.Endpoints = cp
	}
	return info
}

func loadProviders() ([]runtimeProvider, error) {
	cfgProviders, loadErr := loadConfigProviders()

	byID := make(map[string]ProviderConfig)
	for _, cfg := range defaultProviders() {
		byID[cfg.ID] = cfg
	}
	for _, cfg := range cfgProviders {
		id := normalizeProviderID(cfg.ID)
		base, known := byID[id]
		if !known {
			continue
		}
		byID[id] = mergeConfig(base, cfg)
	}

	providers := make([]runtimeProvider, 0, len(byID))
	for _, cfg := range byID {
		entry, ok := normalizeConfig(cfg)
		if !ok {
			continue
		}
		providers = append(providers, entry)
	}

	sort.SliceStable(providers, func(i, j int) bool {
		return providers[i].info.ID < providers[j].info.ID
	})
	return providers, loadErr
}

// mergeConfig overlays non-empty file values onto the built-in defaults.
func mergeConfig(base, override ProviderConfig) ProviderConfig {
	if override.Enabled != nil {
		base.Enabled = override.Enabled
	}
	if v := strings.TrimSpace(override.BaseURL); v != "" {
		base.BaseURL = v
	}
	if v := strings.TrimSpace(override.Timeout); v != "" {
		base.Timeout = v
	}
	if len(override.Endpoints) > 0 {
		merged := make(map[string]string, len(base.Endpoints)+len(override.Endpoints))
		for k, v := range base.Endpoints {
			merged[k] = v
		}
		for k, v := range override.Endpoints {
			merged[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
		}
		base.Endpoints = merged
	}
	return base
}

func loadConfigProviders() ([]ProviderConfig, error) {
	path, err := resolveConfigPath()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read providers file %q: %w", path, err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse providers file %q: %w", path, err)
	}
	return cfg.Providers, nil
}

func resolveConfigPath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("PHOTOPICK_PROVIDERS_FILE")); explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", err
		}
		return explicit, nil
	}

	candidates := []string{
		"config/providers.yaml",
		"/etc/photopick/providers.yaml",
	}
	if homeDir, err := os.UserHomeDir(); err == nil && homeDir != "" {
		candidates = append(candidates, filepath.Join(homeDir, ".config", "photopick", "providers.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", nil
}

func normalizeConfig(cfg ProviderConfig) (runtimeProvider, bool) {
	id := normalizeProviderID(cfg.ID)
	if !providerIDRegexp.MatchString(id) {
		return runtimeProvider{}, false
	}
	authMode, known := authModes[id]
	if !known {
		return runtimeProvider{}, false
	}

	enabled := true
	if cfg.Enabled != nil {
		enabled = *cfg.Enabled
	}

	baseURLEnv := providerEnvName(id, "BASE_URL")
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if v := strings.TrimSpace(os.Getenv(baseURLEnv)); v != "" {
		baseURL = v
	}

	endpoints := make(map[string]string, len(cfg.Endpoints))
	for name, u := range cfg.Endpoints {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if v := strings.TrimSpace(os.Getenv(providerEnvName(id, strings.ToUpper(name)+"_URL"))); v != "" {
			u = v
		}
		endpoints[name] = strings.TrimSpace(u)
	}

	var apiKey, apiKeyEnv string
	if authMode == AuthModeAPIKey {
		apiKeyEnv = providerEnvName(id, "API_KEY")
		apiKey = strings.TrimSpace(os.Getenv(apiKeyEnv))
	}

	timeout := defaultTimeout
	if raw := strings.TrimSpace(cfg.Timeout); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil && parsed > 0 {
			timeout = parsed
		}
	}
	if raw := strings.TrimSpace(os.Getenv(providerEnvName(id, "TIMEOUT"))); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil && parsed > 0 {
			timeout = parsed
		}
	}

	info := ProviderInfo{
		ID:             id,
		Enabled:        enabled,
		RuntimeEnabled: enabled && (authMode == AuthModeOAuth || apiKey != ""),
		AuthMode:       authMode,
		BaseURL:        baseURL,
		Endpoints:      endpoints,
		APIKeyEnv:      apiKeyEnv,
		BaseURLEnv:     baseURLEnv,
	}
	return runtimeProvider{info: info, apiKey: apiKey, timeout: timeout}, true
}

func normalizeProviderID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

func providerEnvName(id, suffix string) string {
	upper := strings.ToUpper(id)
	replacer := strings.NewReplacer("-", "_", ".", "_", "/", "_", " ", "_")
	upper = replacer.Replace(upper)
	return fmt.Sprintf("PHOTOPICK_%s_%s", upper, suffix)
}

func defaultProviders() []ProviderConfig {
	return []ProviderConfig{
		{
			ID:      "googledrive",
			Enabled: boolPtr(true),
			BaseURL: "https://www.googleapis.com/drive/v3",
		},
		{
			ID:        "googlephotos",
			Enabled:   boolPtr(true),
			BaseURL:   "https://photospicker.googleapis.com/v1",
			Endpoints: map[string]string{EndpointLibrary: "https://photoslibrary.googleapis.com/v1"},
		},
		{
			ID:      "gumlet",
			Enabled: boolPtr(true),
			BaseURL: "https://api.gumlet.com",
		},
		{
			ID:        "filestack",
			Enabled:   boolPtr(true),
			BaseURL:   "https://www.filestackapi.com/api",
			Endpoints: map[string]string{EndpointCDN: "https://cdn.filestackcontent.com"},
		},
	}
}

func boolPtr(v bool) *bool {
	return &v
}
