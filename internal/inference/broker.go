// Package inference runs model inference against an OpenAI-compatible
// compute provider and fetches the provider's signature over the response as
// the proof of computation.
package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/alanyoungcy/arbagent/internal/domain"
)

const systemPrompt = "You review trade instructions for an autonomous trading agent. " +
	"The user message is a JSON document describing the trade. " +
	`Reply with a single JSON object {"decision":"execute"|"skip","confidence":0..1,"reason":"..."}.`

// Config configures the broker.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string // used when a request names no model
	Provider    string // used when a request names no provider
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// Broker implements domain.InferenceBroker.
type Broker struct {
	client     openai.Client
	httpClient *http.Client
	baseURL    string
	apiKey     string
	cfg        Config
	logger     *slog.Logger
}

// NewBroker creates a broker for the provider at cfg.BaseURL.
func NewBroker(cfg Config, logger *slog.Logger) *Broker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 512
	}
	httpClient := &http.Client{Timeout: cfg.Timeout}
	client := openai.NewClient(
		option.WithBaseURL(cfg.BaseURL),
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	)
	return &Broker{
		client:     client,
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "inference_broker")),
	}
}

// RunInference sends req.Input to the model and, if requested, fetches the
// provider signature for the completion. A missing signature is not an
// error; the result then carries an empty proof.
func (b *Broker) RunInference(ctx context.Context, req domain.InferenceRequest) (domain.InferenceResult, error) {
	model := req.Model
	if model == "" {
		model = b.cfg.Model
	}
	if model == "" {
		return domain.InferenceResult{}, fmt.Errorf("inference: %w: model is required", domain.ErrInvalidInput)
	}
	provider := req.Provider
	if provider == "" {
		provider = b.cfg.Provider
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = b.cfg.MaxTokens
	}
	temperature := req.Temperature
	if temperature == 0 {
		temperature = b.cfg.Temperature
	}

	input, err := json.Marshal(req.Input)
	if err != nil {
		return domain.InferenceResult{}, fmt.Errorf("inference: encode input: %w", err)
	}

	var opts []option.RequestOption
	if provider != "" {
		opts = append(opts, option.WithHeader("X-Provider-Address", provider))
	}

	start := time.Now()
	resp, err := b.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(string(input)),
		},
		MaxCompletionTokens: openai.Int(int64(maxTokens)),
		Temperature:         openai.Float(temperature),
	}, opts...)
	if err != nil {
		return domain.InferenceResult{}, fmt.Errorf("inference: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return domain.InferenceResult{}, errors.New("inference: provider returned no choices")
	}

	requestID := resp.ID
	if requestID == "" {
		requestID = uuid.NewString()
	}
	servedModel := resp.Model
	if servedModel == "" {
		servedModel = model
	}

	result := domain.InferenceResult{
		RequestID: requestID,
		Output:    resp.Choices[0].Message.Content,
		ModelHash: ModelHash(servedModel),
		Provider:  provider,
		Cost:      strconv.FormatInt(resp.Usage.TotalTokens, 10),
	}

	if req.GenerateProof {
		proof, err := b.fetchSignature(ctx, requestID, servedModel)
		if err != nil {
			b.logger.Warn("proof unavailable",
				slog.String("request_id", requestID),
				slog.String("error", err.Error()),
			)
		}
		result.Proof = proof
	}

	b.logger.Info("inference complete",
		slog.String("model", servedModel),
		slog.String("request_id", requestID),
		slog.Bool("has_proof", result.Proof != ""),
		slog.Duration("latency", time.Since(start)),
	)
	return result, nil
}

// ModelHash is the keccak256 of the served model identifier.
func ModelHash(model string) string {
	return ethcrypto.Keccak256Hash([]byte(model)).Hex()
}

// signatureResponse is the provider's attestation over a completion.
type signatureResponse struct {
	Text      string `json:"text"`
	Signature string `json:"signature"`
}

// fetchSignature retrieves the provider's signature for a completion. It
// returns "" with a nil error when the provider has none for the request.
func (b *Broker) fetchSignature(ctx context.Context, requestID, model string) (string, error) {
	u := b.baseURL + "/signature/" + url.PathEscape(requestID) + "?model=" + url.QueryEscape(model)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var sig signatureResponse
	if err := json.Unmarshal(body, &sig); err != nil {
		return "", fmt.Errorf("decode signature: %w", err)
	}
	return sig.Signature, nil
}
