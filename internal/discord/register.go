package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const defaultAPIBase = "https://discord.com/api/v10"

type commandDefinition struct {
	Name        string                    `json:"name"`
	Description string                    `json:"description"`
	Type        int                       `json:"type"`
	Options     []commandOptionDefinition `json:"options"`
}

type commandOptionDefinition struct {
	Type        int    `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MinLength   int    `json:"min_length,omitempty"`
	MaxLength   int    `json:"max_length,omitempty"`
	Required    bool   `json:"required"`
}

func globalCommands() []commandDefinition {
	return []commandDefinition{
		{
			Name:        "faucet",
			Description: "Faucet the provided address with test collateral",
			Type:        1,
			Options: []commandOptionDefinition{
				{
					Type:        3,
					Name:        "address",
					Description: "Address to faucet",
					MinLength:   42,
					MaxLength:   42,
					Required:    true,
				},
			},
		},
		{
			Name:        "score",
			Description: "Returns the total assets minus debt (at market price)",
			Type:        1,
			Options:     []commandOptionDefinition{},
		},
	}
}

// Registrar installs the global slash commands through the Discord REST API.
type Registrar struct {
	appID    string
	botToken string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewRegistrar 构造命令注册器。
func NewRegistrar(appID, botToken, baseURL string, timeout time.Duration, logger zerolog.Logger) *Registrar {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = defaultAPIBase
	}
	return &Registrar{
		appID:    appID,
		botToken: botToken,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "discord_registrar").Logger(),
	}
}

// InstallGlobalCommands overwrites the application's global command set
// with faucet and score.
func (r *Registrar) InstallGlobalCommands(ctx context.Context) error {
	commands := globalCommands()

	body, err := json.Marshal(commands)
	if err != nil {
		return fmt.Errorf("marshal commands: %w", err)
	}

	url := fmt.Sprintf("%s/applications/%s/commands", r.baseURL, r.appID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create register request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bot "+r.botToken)

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("send register request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("discord 响应码异常: %d", resp.StatusCode)
	}

	r.logger.Info().Int("commands", len(commands)).Msg("global commands installed")
	return nil
}
