package summary

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"focusbot/pkg/logx"
)

const (
	DefaultYandexEndpoint = "https://llm.api.cloud.yandex.net/foundationModels/v1/completion"
	DefaultYandexModel    = "yandexgpt-lite"
	DefaultYandexTimeout  = 20 * time.Second
)

type YandexConfig struct {
	APIKey      string
	FolderID    string
	Model       string
	Endpoint    string
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int
}

// YandexGPT is a Completer backed by the Yandex Foundation Models
// completion API.
type YandexGPT struct {
	cfg    YandexConfig
	client *http.Client
	log    logx.Logger
}

func NewYandexGPT(cfg YandexConfig, log logx.Logger) *YandexGPT {
	if cfg.Model == "" {
		cfg.Model = DefaultYandexModel
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultYandexEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultYandexTimeout
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.3
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 800
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &YandexGPT{
		cfg: cfg,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		log: log.With(logx.String("comp", "yandexgpt")),
	}
}

// Enabled reports whether credentials are configured.
func (y *YandexGPT) Enabled() bool {
	return strings.TrimSpace(y.cfg.APIKey) != "" && strings.TrimSpace(y.cfg.FolderID) != ""
}

type yandexMessage struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type yandexRequest struct {
	ModelURI          string `json:"modelUri"`
	CompletionOptions struct {
		Stream      bool    `json:"stream"`
		Temperature float64 `json:"temperature"`
		MaxTokens   int     `json:"maxTokens"`
	} `json:"completionOptions"`
	Messages []yandexMessage `json:"messages"`
}

type yandexResponse struct {
	Result struct {
		Alternatives []struct {
			Message yandexMessage `json:"message"`
		} `json:"alternatives"`
	} `json:"result"`
}

// Complete returns the first alternative's text. A non-200 status or an
// empty result yields "" without an error; transport failures are errors.
func (y *YandexGPT) Complete(ctx context.Context, system, prompt string) (string, error) {
	var body yandexRequest
	body.ModelURI = fmt.Sprintf("gpt://%s/%s", y.cfg.FolderID, y.cfg.Model)
	body.CompletionOptions.Temperature = y.cfg.Temperature
	body.CompletionOptions.MaxTokens = y.cfg.MaxTokens
	body.Messages = []yandexMessage{{Role: "system", Text: system}, {Role: "user", Text: prompt}}

	b, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, y.cfg.Endpoint, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Api-Key "+y.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Client-Request-ID", "focusbot-"+uuid.NewString())

	resp, err := y.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("yandexgpt: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		y.log.Warn("completion rejected", logx.Int("status", resp.StatusCode), logx.String("body", string(snippet)))
		return "", nil
	}
	var out yandexResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("yandexgpt: decode: %w", err)
	}
	if len(out.Result.Alternatives) == 0 {
		return "", nil
	}
	return strings.TrimSpace(out.Result.Alternatives[0].Message.Text), nil
}
