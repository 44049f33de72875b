// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/grant-engine/pkg/types"
)

// pipelineConfig assembles the full pipeline configuration from the config
// file, environment, and flags. API keys missing from the config fall back
// to the .secrets/ directory.
func pipelineConfig(cmd *cobra.Command) (types.PipelineConfig, types.Layout) {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	if dataDir == "" {
		dataDir = viper.GetString("data_dir")
	}
	if dataDir == "" {
		dataDir = "data"
	}

	cfg := types.PipelineConfig{
		DataDir: dataDir,
		Fetch: types.FetchConfig{
			HTTPConfig: types.HTTPConfig{
				Timeout:   viperDuration("fetch.timeout", 60*time.Second),
				UserAgent: viperString("fetch.user_agent", "grant-engine/"+version),
			},
			Manifest:      viperString("fetch.manifest", "grants.yaml"),
			DownloadDelay: viperDuration("fetch.download_delay", time.Second),
		},
		Conversion: types.ConversionConfig{
			Backend:   types.ConversionBackend(viperString("conversion.backend", "native")),
			GrobidURL: secretDefault("grobid_url", viper.GetString("conversion.grobid_url")),
		},
		Chunking: types.ChunkingConfig{
			SentencesPerChunk: viperInt("chunking.sentences_per_chunk", 5),
			OverlapSentences:  viperInt("chunking.overlap_sentences", 1),
		},
		Embedding: types.EmbeddingConfig{
			HTTPConfig: types.HTTPConfig{
				Timeout: viperDuration("embedding.timeout", 30*time.Second),
			},
			Backend:           types.EmbeddingBackend(viperString("embedding.backend", "tfidf")),
			Model:             viper.GetString("embedding.model"),
			BaseURL:           viper.GetString("embedding.base_url"),
			APIKey:            secretDefault("openai_api_key", viper.GetString("embedding.api_key")),
			BatchSize:         viperInt("embedding.batch_size", 16),
			MaxRetries:        viperInt("embedding.max_retries", 5),
			RequestsPerMinute: viper.GetInt("embedding.requests_per_minute"),
		},
		Retrieval: types.RetrievalConfig{
			MaxResults:    viperInt("retrieval.max_results", 10),
			MinSimilarity: viper.GetFloat64("retrieval.min_similarity"),
		},
		Generation: types.GenerationConfig{
			AIConfig: types.AIConfig{
				Model:      viperString("generation.model", "claude-sonnet-4-5-20250929"),
				MaxRetries: viperInt("generation.max_retries", 3),
			},
			Backend:       types.GenerationBackend(viperString("generation.backend", "claude")),
			BaseURL:       viper.GetString("generation.base_url"),
			MaxTokens:     viperInt("generation.max_tokens", 2048),
			ExemplarCount: viperInt("generation.exemplar_count", 3),
		},
		Server: types.ServerConfig{
			Addr: viperString("server.addr", "localhost:8080"),
		},
	}

	switch cfg.Generation.Backend {
	case types.GenOpenAI:
		cfg.Generation.APIKey = secretDefault("openai_api_key", viper.GetString("generation.api_key"))
	default:
		cfg.Generation.APIKey = secretDefault("claude_api_key", viper.GetString("generation.api_key"))
	}

	return cfg, types.NewLayout(dataDir)
}

func viperString(key, fallback string) string {
	if v := viper.GetString(key); v != "" {
		return v
	}
	return fallback
}

func viperInt(key string, fallback int) int {
	if v := viper.GetInt(key); v != 0 {
		return v
	}
	return fallback
}

func viperDuration(key string, fallback time.Duration) time.Duration {
	if v := viper.GetDuration(key); v != 0 {
		return v
	}
	return fallback
}
