package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Getter resolves a named parameter, e.g. from SSM Parameter Store.
type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

type Config struct {
	// LINE channel secret used to verify webhook signatures
	LineChannelSecret string `validate:"required"`
	// LINE channel access token used for profile lookups and replies
	LineChannelToken string `validate:"required"`
	// Azure OpenAI resource endpoint, e.g. https://example.openai.azure.com
	AzureEndpoint   string `validate:"required,url"`
	AzureAPIKey     string `validate:"required"`
	AzureAPIVersion string `validate:"required"`
	// Azure OpenAI deployment name
	AzureModel      string `validate:"required"`
	HotPepperAPIKey string `validate:"required"`

	HotPepperBaseURL  string `validate:"omitempty,url"`
	ConversationScope string `validate:"oneof=shared user"`
	// DynamoDB table for the transcript archive; empty disables archiving
	TranscriptTable string
	// Listen address for the local HTTP server; empty runs as a Lambda
	LocalAddr string
}

// setting is a value read from the environment, falling back to the
// parameter store when the variable is unset.
type setting struct {
	env   string
	param string
	dst   *string
}

// Load reads configuration from lookup and, for required values missing
// there, from params under paramPrefix. params may be nil.
func Load(ctx context.Context, lookup func(string) string, params Getter, paramPrefix string) (*Config, error) {
	var cfg Config
	required := []setting{
		{env: "LINE_CHANNEL_SECRET", param: "line-channel-secret", dst: &cfg.LineChannelSecret},
		{env: "LINE_CHANNEL_ACCESS_TOKEN", param: "line-channel-access-token", dst: &cfg.LineChannelToken},
		{env: "AZURE_OPENAI_ENDPOINT", param: "azure-openai-endpoint", dst: &cfg.AzureEndpoint},
		{env: "AZURE_OPENAI_API_KEY", param: "azure-openai-api-key", dst: &cfg.AzureAPIKey},
		{env: "AZURE_OPENAI_API_VERSION", param: "azure-openai-api-version", dst: &cfg.AzureAPIVersion},
		{env: "AZURE_OPENAI_MODEL", param: "azure-openai-model", dst: &cfg.AzureModel},
		{env: "HOTPEPPER_API_KEY", param: "hotpepper-api-key", dst: &cfg.HotPepperAPIKey},
	}

	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	for _, s := range required {
		v := strings.TrimSpace(lookup(s.env))
		if v == "" && params != nil && paramPrefix != "" {
			name := paramPrefix + "/" + s.param
			pv, err := params.GetParameter(ctx, name)
			if err != nil {
				return nil, fmt.Errorf("config: resolve %s from %s: %w", s.env, name, err)
			}
			v = strings.TrimSpace(pv)
		}
		*s.dst = v
	}

	cfg.HotPepperBaseURL = strings.TrimSpace(lookup("HOTPEPPER_BASE_URL"))
	cfg.TranscriptTable = strings.TrimSpace(lookup("TRANSCRIPT_TABLE"))
	cfg.LocalAddr = strings.TrimSpace(lookup("LOCAL_ADDR"))
	cfg.ConversationScope = strings.TrimSpace(lookup("CONVERSATION_SCOPE"))
	if cfg.ConversationScope == "" {
		cfg.ConversationScope = "shared"
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}
