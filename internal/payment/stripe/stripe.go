package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var (
	ErrConfigInvalid    = errors.New("stripe config invalid")
	ErrRequestFailed    = errors.New("stripe request failed")
	ErrResponseInvalid  = errors.New("stripe response invalid")
	ErrPermissionDenied = errors.New("stripe permission denied")
	ErrUnavailable      = errors.New("stripe endpoint unavailable")
	ErrValidation       = errors.New("stripe validation failed")
)

const (
	defaultAPIBaseURL = "https://api.stripe.com"
	defaultTimeout    = 12 * time.Second
)

// PaymentIntent 终态状态值
const (
	IntentStatusSucceeded = "succeeded"
	IntentStatusCanceled  = "canceled"
)

// Config Stripe 渠道配置。
type Config struct {
	SecretKey  string `json:"secret_key"`
	APIBaseURL string `json:"api_base_url"`
}

// IntentResult 查询 PaymentIntent 返回。
type IntentResult struct {
	ID     string
	Status string
	Raw    map[string]interface{}
}

// Charge 支付单下的扣款记录。
type Charge struct {
	ID             string
	Refunded       bool
	AmountRefunded int64
	Raw            map[string]interface{}
}

// TransferInput Connect 转账输入。
type TransferInput struct {
	Destination    string
	AmountMinor    int64
	Currency       string
	IdempotencyKey string
	Metadata       map[string]string
}

// TransferResult Connect 转账返回。
type TransferResult struct {
	TransferID string
	Raw        map[string]interface{}
}

// ParseConfig 解析配置。
func ParseConfig(raw map[string]interface{}) (*Config, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: empty config", ErrConfigInvalid)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal config failed", ErrConfigInvalid)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: unmarshal config failed", ErrConfigInvalid)
	}
	cfg.normalize()
	return &cfg, nil
}

// ValidateConfig 校验配置。
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return fmt.Errorf("%w: secret_key is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return fmt.Errorf("%w: api_base_url is required", ErrConfigInvalid)
	}
	if _, err := url.ParseRequestURI(strings.TrimSpace(cfg.APIBaseURL)); err != nil {
		return fmt.Errorf("%w: api_base_url is invalid", ErrConfigInvalid)
	}
	return nil
}

// GetPaymentIntent 查询 PaymentIntent 状态。
func GetPaymentIntent(ctx context.Context, cfg *Config, paymentIntentID string) (*IntentResult, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	paymentIntentID = strings.TrimSpace(paymentIntentID)
	if paymentIntentID == "" {
		return nil, fmt.Errorf("%w: payment_intent_id is required", ErrConfigInvalid)
	}

	path := fmt.Sprintf("/v1/payment_intents/%s", url.PathEscape(paymentIntentID))
	respBody, statusCode, err := doRequest(ctx, cfg, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, err
	}
	if statusCode < 200 || statusCode >= 300 {
		return nil, classifyStatusError(statusCode, respBody, "query payment intent")
	}

	raw, err := decodeRawMap(respBody)
	if err != nil {
		return nil, err
	}
	result := &IntentResult{Raw: raw}
	result.ID = strings.TrimSpace(readString(raw, "id"))
	result.Status = strings.ToLower(strings.TrimSpace(readString(raw, "status")))
	if result.ID == "" || result.Status == "" {
		return nil, fmt.Errorf("%w: missing payment intent id or status", ErrResponseInvalid)
	}
	return result, nil
}

// ListCharges 按 PaymentIntent 查询扣款记录，用于退款核验。
func ListCharges(ctx context.Context, cfg *Config, paymentIntentID string) ([]Charge, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	paymentIntentID = strings.TrimSpace(paymentIntentID)
	if paymentIntentID == "" {
		return nil, fmt.Errorf("%w: payment_intent_id is required", ErrConfigInvalid)
	}

	path := "/v1/charges?payment_intent=" + url.QueryEscape(paymentIntentID)
	respBody, statusCode, err := doRequest(ctx, cfg, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, err
	}
	if statusCode < 200 || statusCode >= 300 {
		return nil, classifyStatusError(statusCode, respBody, "list charges")
	}

	raw, err := decodeRawMap(respBody)
	if err != nil {
		return nil, err
	}
	items, ok := raw["data"].([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: missing charge list", ErrResponseInvalid)
	}
	charges := make([]Charge, 0, len(items))
	for _, item := range items {
		mapped, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		charges = append(charges, Charge{
			ID:             strings.TrimSpace(readString(mapped, "id")),
			Refunded:       readBool(mapped, "refunded"),
			AmountRefunded: readInt64(mapped, "amount_refunded"),
			Raw:            mapped,
		})
	}
	return charges, nil
}

// CreateTransfer 向 Connect 关联账户发起转账。
func CreateTransfer(ctx context.Context, cfg *Config, input TransferInput) (*TransferResult, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	destination := strings.TrimSpace(input.Destination)
	if destination == "" {
		return nil, fmt.Errorf("%w: destination is required", ErrConfigInvalid)
	}
	if input.AmountMinor <= 0 {
		return nil, fmt.Errorf("%w: amount must be greater than zero", ErrConfigInvalid)
	}
	currency := strings.ToLower(strings.TrimSpace(input.Currency))
	if currency == "" {
		return nil, fmt.Errorf("%w: currency is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(input.IdempotencyKey) == "" {
		return nil, fmt.Errorf("%w: idempotency_key is required", ErrConfigInvalid)
	}

	form := url.Values{}
	form.Set("destination", destination)
	form.Set("amount", strconv.FormatInt(input.AmountMinor, 10))
	form.Set("currency", currency)
	for key, value := range input.Metadata {
		trimmed := strings.TrimSpace(key)
		if trimmed == "" {
			continue
		}
		form.Set(fmt.Sprintf("metadata[%s]", trimmed), value)
	}

	respBody, statusCode, err := doRequest(ctx, cfg, http.MethodPost, "/v1/transfers", form, input.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if statusCode < 200 || statusCode >= 300 {
		return nil, classifyStatusError(statusCode, respBody, "create transfer")
	}

	raw, err := decodeRawMap(respBody)
	if err != nil {
		return nil, err
	}
	result := &TransferResult{Raw: raw}
	result.TransferID = strings.TrimSpace(readString(raw, "id"))
	if result.TransferID == "" {
		return nil, fmt.Errorf("%w: missing transfer id", ErrResponseInvalid)
	}
	return result, nil
}

func (c *Config) normalize() {
	c.SecretKey = strings.TrimSpace(c.SecretKey)
	c.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.APIBaseURL), "/")
	if c.APIBaseURL == "" {
		c.APIBaseURL = defaultAPIBaseURL
	}
}

// classifyStatusError 将网关错误响应归类为哨兵错误，错误信息折叠 error code。
func classifyStatusError(statusCode int, body []byte, operation string) error {
	detail := readErrorDetail(body)
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s status %d: %s", ErrPermissionDenied, operation, statusCode, detail)
	case statusCode == http.StatusBadRequest || statusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s status %d: %s", ErrValidation, operation, statusCode, detail)
	case statusCode >= 500 || statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s status %d", ErrUnavailable, operation, statusCode)
	default:
		return fmt.Errorf("%w: %s status %d: %s", ErrRequestFailed, operation, statusCode, detail)
	}
}

func readErrorDetail(body []byte) string {
	raw, err := decodeRawMap(body)
	if err != nil {
		return "unreadable error body"
	}
	errorRaw := readMap(raw, "error")
	if errorRaw == nil {
		return "no error detail"
	}
	message := strings.TrimSpace(readString(errorRaw, "message"))
	code := strings.TrimSpace(readString(errorRaw, "code"))
	if code != "" {
		return fmt.Sprintf("%s (code: %s)", message, code)
	}
	if message == "" {
		return "no error detail"
	}
	return message
}

func doRequest(ctx context.Context, cfg *Config, method, path string, form url.Values, idempotencyKey string) ([]byte, int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/") + path
	var reader io.Reader
	if form != nil {
		reader = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: build request failed", ErrRequestFailed)
	}
	req.Header.Set("Authorization", "Bearer "+cfg.SecretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if key := strings.TrimSpace(idempotencyKey); key != "" {
		req.Header.Set("Idempotency-Key", key)
	}

	resp, err := (&http.Client{Timeout: defaultTimeout}).Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: read response failed", ErrResponseInvalid)
	}
	return respBody, resp.StatusCode, nil
}

func decodeRawMap(body []byte) (map[string]interface{}, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode response failed", ErrResponseInvalid)
	}
	return raw, nil
}

func readString(raw map[string]interface{}, key string) string {
	if raw == nil || strings.TrimSpace(key) == "" {
		return ""
	}
	value, ok := raw[key]
	if !ok || value == nil {
		return ""
	}
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case json.Number:
		return strings.TrimSpace(typed.String())
	case float64:
		return strings.TrimSpace(strconv.FormatInt(int64(typed), 10))
	case int64:
		return strings.TrimSpace(strconv.FormatInt(typed, 10))
	case int:
		return strings.TrimSpace(strconv.Itoa(typed))
	default:
		return ""
	}
}

func readMap(raw map[string]interface{}, key string) map[string]interface{} {
	if raw == nil || strings.TrimSpace(key) == "" {
		return nil
	}
	value, ok := raw[key]
	if !ok || value == nil {
		return nil
	}
	mapped, ok := value.(map[string]interface{})
	if !ok {
		return nil
	}
	return mapped
}

func readInt64(raw map[string]interface{}, key string) int64 {
	if raw == nil || strings.TrimSpace(key) == "" {
		return 0
	}
	value, ok := raw[key]
	if !ok || value == nil {
		return 0
	}
	switch typed := value.(type) {
	case int64:
		return typed
	case int:
		return int64(typed)
	case float64:
		return int64(typed)
	case json.Number:
		parsed, err := typed.Int64()
		if err == nil {
			return parsed
		}
		floatVal, err := typed.Float64()
		if err != nil {
			return 0
		}
		return int64(floatVal)
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}

func readBool(raw map[string]interface{}, key string) bool {
	if raw == nil || strings.TrimSpace(key) == "" {
		return false
	}
	value, ok := raw[key]
	if !ok || value == nil {
		return false
	}
	typed, ok := value.(bool)
	if !ok {
		return false
	}
	return typed
}
