package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
)

// Validate checks every configuration value and reports all failures
// at once via errors.Join, so a broken config surfaces as one
// itemized error instead of a fix-rerun loop. Individual failures
// remain checkable with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	var errs []error

	if os.Getenv("GEMINI_API_KEY") == "" {
		errs = append(errs, fmt.Errorf("%w: GEMINI_API_KEY environment variable is required", ErrMissingAPIKey))
	}

	if c.ModelName == "" {
		errs = append(errs, fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName))
	}

	// Temperature range per the Gemini API: 0.0 to 2.0.
	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		errs = append(errs, fmt.Errorf("%w: must be between 0.0 and 2.0, got %.2f", ErrInvalidTemperature, c.Temperature))
	}

	if c.MaxTokens < 1 {
		errs = append(errs, fmt.Errorf("%w: must be positive, got %d", ErrInvalidMaxTokens, c.MaxTokens))
	}

	if c.EmbedderModel == "" {
		errs = append(errs, fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedderModel))
	}

	if c.ChunkSize < 1 {
		errs = append(errs, fmt.Errorf("%w: chunk_size must be positive, got %d", ErrInvalidChunking, c.ChunkSize))
	}
	if c.ChunkOverlap < 0 {
		errs = append(errs, fmt.Errorf("%w: chunk_overlap cannot be negative, got %d", ErrInvalidChunking, c.ChunkOverlap))
	}
	if c.ChunkSize >= 1 && c.ChunkOverlap >= c.ChunkSize {
		errs = append(errs, fmt.Errorf("%w: chunk_overlap (%d) must be smaller than chunk_size (%d)",
			ErrInvalidChunking, c.ChunkOverlap, c.ChunkSize))
	}

	if c.TopK < 1 || c.TopK > 100 {
		errs = append(errs, fmt.Errorf("%w: must be between 1 and 100, got %d", ErrInvalidTopK, c.TopK))
	}

	validMetrics := []string{"cosine", "l2", "ip"}
	if !slices.Contains(validMetrics, c.IndexMetric) {
		errs = append(errs, fmt.Errorf("%w: %q is not valid, must be one of: %v", ErrInvalidMetric, c.IndexMetric, validMetrics))
	}

	if c.MaxHistoryMessages < 1 {
		errs = append(errs, fmt.Errorf("%w: max_history_messages must be positive, got %d", ErrInvalidHistory, c.MaxHistoryMessages))
	}

	errs = append(errs, c.validatePostgres()...)

	return errors.Join(errs...)
}

func (c *Config) validatePostgres() []error {
	var errs []error

	if c.PostgresHost == "" {
		errs = append(errs, fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgres))
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		errs = append(errs, fmt.Errorf("%w: port must be between 1 and 65535, got %d", ErrInvalidPostgres, c.PostgresPort))
	}
	if c.PostgresDBName == "" {
		errs = append(errs, fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgres))
	}
	if c.PostgresPassword == "" {
		errs = append(errs, fmt.Errorf("%w: postgres_password must be set", ErrInvalidPostgres))
	}

	// Modern SSL modes only; allow/prefer are deprecated.
	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		errs = append(errs, fmt.Errorf("%w: ssl mode %q is not valid, must be one of: %v",
			ErrInvalidPostgres, c.PostgresSSLMode, validSSLModes))
	}

	return errs
}
