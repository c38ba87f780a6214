package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go-idv-capture/analysis"
	"go-idv-capture/logging"
	"go-idv-capture/media"
	"go-idv-capture/metrics"
	redis "go-idv-capture/redis"
	"go-idv-capture/session"
	"go-idv-capture/transport"
)

type Config struct {
	ServerConfig ServerConfig `json:"server_config"`
	LogLevel     string       `json:"log_level,omitempty"`

	// JwtPublicKeyPath verifies externally issued verification tokens.
	// Setting JwtPrivateKeyPath instead enables the in-process issuer
	// and its dev token endpoint.
	JwtPublicKeyPath  string `json:"jwt_public_key_path,omitempty"`
	JwtPrivateKeyPath string `json:"jwt_private_key_path,omitempty"`
	TokenIssuerId     string `json:"token_issuer_id,omitempty"`

	MediaChannelUrl     string `json:"media_channel_url"`
	DocumentAnalysisUrl string `json:"document_analysis_url"`
	FaceAnalysisUrl     string `json:"face_analysis_url"`
	CountryServiceUrl   string `json:"country_service_url"`

	SettleDelayMs    int `json:"settle_delay_ms,omitempty"`
	ReconnectDelayMs int `json:"reconnect_delay_ms,omitempty"`
	ChunkIntervalMs  int `json:"chunk_interval_ms,omitempty"`

	StorageType         string                    `json:"storage_type"`
	RedisConfig         redis.RedisConfig         `json:"redis_config,omitempty"`
	RedisSentinelConfig redis.RedisSentinelConfig `json:"redis_sentinel_config,omitempty"`
}

func main() {
	configPath := flag.String("config", "", "Path for the config.json to use")
	flag.Parse()

	if *configPath == "" {
		fatal("please provide a config path using the --config flag", nil)
	}

	config, err := readConfigFile(*configPath)
	if err != nil {
		fatal("failed to read config file", err)
	}

	logging.InitLogger(config.LogLevel)
	slog.Info("Using config", "path", *configPath)
	slog.Info("Hosting on", "host", config.ServerConfig.Host, "port", config.ServerConfig.Port)

	tokenStorage, err := createTokenStorage(&config)
	if err != nil {
		fatal("failed to instantiate token storage", err)
	}

	tokenIssuer, tokenResolver, err := createTokenVerification(&config, tokenStorage)
	if err != nil {
		fatal("failed to instantiate token verification", err)
	}

	m := metrics.New()
	countries := analysis.NewCountryCache(config.CountryServiceUrl, analysis.DefaultCountryCacheTTL)
	documents := analysis.NewDocumentClient(config.DocumentAnalysisUrl)
	faces := analysis.NewFaceClient(config.FaceAnalysisUrl)

	sessionConfig := session.Config{
		SettleDelay:   time.Duration(config.SettleDelayMs) * time.Millisecond,
		ChunkInterval: time.Duration(config.ChunkIntervalMs) * time.Millisecond,
	}
	reconnectDelay := time.Duration(config.ReconnectDelayMs) * time.Millisecond

	serverState := ServerState{
		tokenResolver: tokenResolver,
		tokenStorage:  tokenStorage,
		tokenIssuer:   tokenIssuer,
		metrics:       m,
		sessions:      make(map[string]*sessionEntry),
		newSession: func(id, token string) *session.Session {
			channel := transport.NewChannel(config.MediaChannelUrl, reconnectDelay)
			channel.OnReconnect = m.Reconnects.Inc
			return session.New(id, token, session.Deps{
				Source:    media.NewAcquirer(media.NewSyntheticDevice()),
				Channel:   channel,
				Documents: documents,
				Faces:     faces,
				Countries: countries,
			}, sessionConfig)
		},
	}

	server, err := NewServer(&serverState, config.ServerConfig)
	if err != nil {
		fatal("failed to create server", err)
	}

	err = server.ListenAndServe()
	if err != nil {
		fatal("failed to listen and serve", err)
	}
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}

func readConfigFile(path string) (Config, error) {
	configBytes, err := os.ReadFile(path)

	if err != nil {
		return Config{}, err
	}

	var config Config
	err = json.Unmarshal(configBytes, &config)

	if err != nil {
		return Config{}, err
	}

	return config, nil
}

func createTokenStorage(config *Config) (TokenStorage, error) {
	if config.StorageType == "redis" {
		slog.Info("Using redis token storage")
		client, err := redis.NewRedisClient(&config.RedisConfig)
		if err != nil {
			return nil, err
		}
		return NewRedisTokenStorage(client, config.RedisConfig.Namespace), nil
	}
	if config.StorageType == "redis_sentinel" {
		slog.Info("Using redis sentinel storage")
		client, err := redis.NewRedisSentinelClient(&config.RedisSentinelConfig)
		if err != nil {
			return nil, err
		}
		return NewRedisTokenStorage(client, config.RedisSentinelConfig.Namespace), nil
	}
	if config.StorageType == "memory" {
		slog.Info("Using in memory storage")
		return NewInMemoryTokenStorage(), nil
	}
	return nil, fmt.Errorf("%v is not a valid storage type", config.StorageType)
}

// createTokenVerification wires the resolver, and the issuer when a
// private key is configured.
func createTokenVerification(config *Config, storage TokenStorage) (*TokenIssuer, *JwtTokenResolver, error) {
	if config.JwtPrivateKeyPath != "" {
		issuer, err := NewTokenIssuer(config.JwtPrivateKeyPath, config.TokenIssuerId, TokenTimeout)
		if err != nil {
			return nil, nil, err
		}
		return issuer, NewJwtTokenResolverWithKey(issuer.PublicKey(), storage), nil
	}

	if config.JwtPublicKeyPath == "" {
		return nil, nil, fmt.Errorf("either jwt_public_key_path or jwt_private_key_path must be configured")
	}
	resolver, err := NewJwtTokenResolver(config.JwtPublicKeyPath, storage)
	if err != nil {
		return nil, nil, err
	}
	return nil, resolver, nil
}
