package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"gopkg.in/yaml.v3"
)

type LogConfig struct {
	Level    string
	Format   string
	Output   string
	FilePath string
}

// ExecutorConfig drives the off-chain executor: RPC access, signing identity,
// program addresses, route-quoting parameters and transaction policy.
type ExecutorConfig struct {
	RPCURL                        string
	Commitment                    rpc.CommitmentType
	KeypairPath                   string
	PollInterval                  time.Duration
	MaxStrategiesPerTick          int
	Concurrency                   int
	TxTimeout                     time.Duration
	ConfirmPollInterval           time.Duration
	ConfirmMaxAttempts            int
	SkipPreflight                 bool
	MaxRetries                    *uint
	ComputeUnitLimit              uint32
	ComputeUnitPriceMicroLamports uint64
	ProgramID                     solana.PublicKey
	OpenBookProgramID             solana.PublicKey
	RaydiumProgramID              solana.PublicKey
	QuoteBaseURL                  string
	QuoteTimeout                  time.Duration
	SlippageBps                   uint64
	OnlyDirectRoutes              bool
	ExcludedVenues                []string
	DBDSN                         string
	Log                           LogConfig
}

var (
	defaultProgramID         = solana.MustPublicKeyFromBase58("8TJjyzq3iXc48MgV6TD5DumKKwfWKU14Jr9pwgnAbpzs")
	defaultOpenBookProgramID = solana.MustPublicKeyFromBase58("srmqPvymJeFKQ4zGQed1GFppgkRHL9kaELCbyksJtPX")
	defaultRaydiumProgramID  = solana.MustPublicKeyFromBase58("675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8")
	defaultQuoteBaseURL      = "https://quote-api.jup.ag/v4"
)

func LoadExecutorConfig() (ExecutorConfig, error) {
	if err := ensureRuntimeConfigLoaded(); err != nil {
		return ExecutorConfig{}, err
	}

	keypairPath := envOrDefault("EXECUTOR_KEYPAIR_PATH", envOrDefault("SOLANA_KEYPAIR_PATH", "~/.config/solana/id.json"))
	expandedKeypair, err := expandHomePath(keypairPath)
	if err != nil {
		return ExecutorConfig{}, fmt.Errorf("expand keypair path: %w", err)
	}

	pollInterval, err := envDuration("EXECUTOR_POLL_INTERVAL", 30*time.Second)
	if err != nil {
		return ExecutorConfig{}, err
	}

	txTimeout, err := envDuration("EXECUTOR_TX_TIMEOUT", 45*time.Second)
	if err != nil {
		return ExecutorConfig{}, err
	}

	confirmPollInterval, err := envDuration("EXECUTOR_CONFIRM_POLL_INTERVAL", 700*time.Millisecond)
	if err != nil {
		return ExecutorConfig{}, err
	}

	confirmMaxAttempts, err := envInt("EXECUTOR_CONFIRM_MAX_ATTEMPTS", 40)
	if err != nil {
		return ExecutorConfig{}, err
	}

	maxStrategies, err := envInt("EXECUTOR_MAX_STRATEGIES_PER_TICK", 25)
	if err != nil {
		return ExecutorConfig{}, err
	}

	concurrency, err := envInt("EXECUTOR_CONCURRENCY", 4)
	if err != nil {
		return ExecutorConfig{}, err
	}

	commitment, err := envCommitment("SOLANA_COMMITMENT", rpc.CommitmentConfirmed)
	if err != nil {
		return ExecutorConfig{}, err
	}

	skipPreflight, err := envBool("EXECUTOR_SKIP_PREFLIGHT", false)
	if err != nil {
		return ExecutorConfig{}, err
	}

	maxRetries, err := envOptionalUint("EXECUTOR_MAX_RETRIES")
	if err != nil {
		return ExecutorConfig{}, err
	}

	cuLimit, err := envUint32("EXECUTOR_COMPUTE_UNIT_LIMIT", 0)
	if err != nil {
		return ExecutorConfig{}, err
	}

	cuPrice, err := envUint64("EXECUTOR_COMPUTE_UNIT_PRICE_MICRO_LAMPORTS", 0)
	if err != nil {
		return ExecutorConfig{}, err
	}

	programID, err := envPubkey("BOUNDED_STRATEGY_PROGRAM_ID", defaultProgramID)
	if err != nil {
		return ExecutorConfig{}, err
	}
	openBookProgramID, err := envPubkey("OPENBOOK_PROGRAM_ID", defaultOpenBookProgramID)
	if err != nil {
		return ExecutorConfig{}, err
	}
	raydiumProgramID, err := envPubkey("RAYDIUM_PROGRAM_ID", defaultRaydiumProgramID)
	if err != nil {
		return ExecutorConfig{}, err
	}

	quoteTimeout, err := envDuration("EXECUTOR_QUOTE_TIMEOUT", 10*time.Second)
	if err != nil {
		return ExecutorConfig{}, err
	}

	slippageBps, err := envUint64("EXECUTOR_SLIPPAGE_BPS", 500)
	if err != nil {
		return ExecutorConfig{}, err
	}

	onlyDirectRoutes, err := envBool("EXECUTOR_ONLY_DIRECT_ROUTES", false)
	if err != nil {
		return ExecutorConfig{}, err
	}

	return ExecutorConfig{
		RPCURL:                        envOrDefault("SOLANA_RPC_URL", "http://127.0.0.1:8899"),
		Commitment:                    commitment,
		KeypairPath:                   expandedKeypair,
		PollInterval:                  pollInterval,
		MaxStrategiesPerTick:          maxStrategies,
		Concurrency:                   concurrency,
		TxTimeout:                     txTimeout,
		ConfirmPollInterval:           confirmPollInterval,
		ConfirmMaxAttempts:            confirmMaxAttempts,
		SkipPreflight:                 skipPreflight,
		MaxRetries:                    maxRetries,
		ComputeUnitLimit:              cuLimit,
		ComputeUnitPriceMicroLamports: cuPrice,
		ProgramID:                     programID,
		OpenBookProgramID:             openBookProgramID,
		RaydiumProgramID:              raydiumProgramID,
		QuoteBaseURL:                  envOrDefault("EXECUTOR_QUOTE_BASE_URL", defaultQuoteBaseURL),
		QuoteTimeout:                  quoteTimeout,
		SlippageBps:                   slippageBps,
		OnlyDirectRoutes:              onlyDirectRoutes,
		ExcludedVenues:                parseCSVEnv(envOrDefault("EXECUTOR_EXCLUDED_VENUES", ""), nil),
		DBDSN:                         envOrDefault("EXECUTOR_DB_DSN", ""),
		Log:                           buildLogConfig("EXECUTOR", "executor"),
	}, nil
}

type ConfigSource struct {
	Phase  string
	Path   string
	Loaded bool
}

func CurrentConfigSource() (ConfigSource, error) {
	if err := ensureRuntimeConfigLoaded(); err != nil {
		return ConfigSource{}, err
	}
	return ConfigSource{
		Phase:  runtimeConfigPhase,
		Path:   runtimeConfigPath,
		Loaded: runtimeConfigLoaded,
	}, nil
}

func buildLogConfig(prefix string, serviceName string) LogConfig {
	level := envOrDefault(prefix+"_LOG_LEVEL", envOrDefault("LOG_LEVEL", "info"))
	format := envOrDefault(prefix+"_LOG_FORMAT", envOrDefault("LOG_FORMAT", "text"))
	output := envOrDefault(prefix+"_LOG_OUTPUT", envOrDefault("LOG_OUTPUT", "console"))
	filePath := envOrDefault(prefix+"_LOG_FILE", envOrDefault("LOG_FILE", filepath.Join(".docker", serviceName, serviceName+".log")))

	return LogConfig{
		Level:    level,
		Format:   format,
		Output:   output,
		FilePath: filePath,
	}
}

func envPubkey(key string, fallback solana.PublicKey) (solana.PublicKey, error) {
	raw := strings.TrimSpace(valueForKey(key))
	if raw == "" {
		return fallback, nil
	}
	pk, err := solana.PublicKeyFromBase58(raw)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid %s: %w", key, err)
	}
	return pk, nil
}

func envCommitment(key string, fallback rpc.CommitmentType) (rpc.CommitmentType, error) {
	raw := strings.TrimSpace(valueForKey(key))
	if raw == "" {
		return fallback, nil
	}
	switch strings.ToLower(raw) {
	case string(rpc.CommitmentProcessed):
		return rpc.CommitmentProcessed, nil
	case string(rpc.CommitmentConfirmed):
		return rpc.CommitmentConfirmed, nil
	case string(rpc.CommitmentFinalized):
		return rpc.CommitmentFinalized, nil
	default:
		return "", fmt.Errorf("invalid %s: %q (expected processed|confirmed|finalized)", key, raw)
	}
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(valueForKey(key))
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be > 0", key)
	}
	return d, nil
}

func envInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(valueForKey(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("invalid %s: must be > 0", key)
	}
	return v, nil
}

func envUint64(key string, fallback uint64) (uint64, error) {
	raw := strings.TrimSpace(valueForKey(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func envUint32(key string, fallback uint32) (uint32, error) {
	raw := strings.TrimSpace(valueForKey(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return uint32(v), nil
}

func envOptionalUint(key string) (*uint, error) {
	raw := strings.TrimSpace(valueForKey(key))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", key, err)
	}
	out := uint(v)
	return &out, nil
}

func envBool(key string, fallback bool) (bool, error) {
	raw := strings.TrimSpace(valueForKey(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func envOrDefault(key, fallback string) string {
	if value := strings.TrimSpace(valueForKey(key)); value != "" {
		return value
	}
	return fallback
}

func parseCSVEnv(raw string, fallback []string) []string {
	if strings.TrimSpace(raw) == "" {
		return fallback
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		value := strings.TrimSpace(part)
		if value == "" {
			continue
		}
		out = append(out, value)
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func expandHomePath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if path == "~" {
			return homeDir, nil
		}
		return filepath.Join(homeDir, strings.TrimPrefix(path, "~/")), nil
	}
	return path, nil
}

var (
	runtimeConfigOnce   sync.Once
	runtimeConfigErr    error
	runtimeConfigValues map[string]string
	runtimeConfigLoaded bool
	runtimeConfigPath   string
	runtimeConfigPhase  string
)

func ensureRuntimeConfigLoaded() error {
	runtimeConfigOnce.Do(func() {
		runtimeConfigValues = make(map[string]string)

		phase := strings.TrimSpace(os.Getenv("CONFIG_PHASE"))
		if phase == "" {
			phase = "local"
		}
		runtimeConfigPhase = phase

		configPath := strings.TrimSpace(os.Getenv("CONFIG_FILE"))
		explicitPath := configPath != ""
		if configPath == "" {
			configPath = filepath.Join("config", "config-"+phase+".yaml")
		}

		body, err := os.ReadFile(configPath)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) && !explicitPath {
				return
			}
			runtimeConfigErr = fmt.Errorf("read config file %q: %w", configPath, err)
			return
		}

		raw := make(map[string]any)
		if err := yaml.Unmarshal(body, &raw); err != nil {
			runtimeConfigErr = fmt.Errorf("parse config file %q: %w", configPath, err)
			return
		}

		flattened, err := flattenConfig(raw)
		if err != nil {
			runtimeConfigErr = fmt.Errorf("flatten config file %q: %w", configPath, err)
			return
		}

		runtimeConfigValues = flattened
		runtimeConfigLoaded = true
		if absPath, err := filepath.Abs(configPath); err == nil {
			runtimeConfigPath = absPath
		} else {
			runtimeConfigPath = configPath
		}
	})
	return runtimeConfigErr
}

func flattenConfig(raw map[string]any) (map[string]string, error) {
	out := make(map[string]string)
	for key, value := range raw {
		segment := normalizeKeySegment(key)
		if segment == "" {
			continue
		}
		if err := flattenConfigValue(segment, value, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func flattenConfigValue(prefix string, value any, out map[string]string) error {
	switch typed := value.(type) {
	case map[string]any:
		for key, child := range typed {
			segment := normalizeKeySegment(key)
			if segment == "" {
				continue
			}
			if err := flattenConfigValue(prefix+"_"+segment, child, out); err != nil {
				return err
			}
		}
		return nil
	case map[any]any:
		for keyAny, child := range typed {
			keyText, ok := keyAny.(string)
			if !ok {
				return fmt.Errorf("unsupported map key type %T under %q", keyAny, prefix)
			}
			segment := normalizeKeySegment(keyText)
			if segment == "" {
				continue
			}
			if err := flattenConfigValue(prefix+"_"+segment, child, out); err != nil {
				return err
			}
		}
		return nil
	case []any:
		parts := make([]string, 0, len(typed))
		for _, item := range typed {
			switch scalar := item.(type) {
			case string:
				if strings.TrimSpace(scalar) == "" {
					continue
				}
				parts = append(parts, strings.TrimSpace(scalar))
			case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
				parts = append(parts, fmt.Sprint(scalar))
			default:
				return fmt.Errorf("unsupported list item type %T under %q", item, prefix)
			}
		}
		out[prefix] = strings.Join(parts, ",")
		return nil
	case nil:
		return nil
	default:
		out[prefix] = fmt.Sprint(typed)
		return nil
	}
}

func normalizeKeySegment(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(raw))
	lastUnderscore := false

	for _, r := range raw {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
			lastUnderscore = false
			continue
		}
		if !lastUnderscore && b.Len() > 0 {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}

	return strings.Trim(b.String(), "_")
}

func valueForKey(key string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}

	if err := ensureRuntimeConfigLoaded(); err != nil {
		return ""
	}

	if value := strings.TrimSpace(runtimeConfigValues[key]); value != "" {
		return value
	}
	return ""
}
