package mercadopago

import (
	"bytes"
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

	"github.com/shopspring/decimal"
)

var (
	ErrConfigInvalid    = errors.New("mercadopago config invalid")
	ErrRequestFailed    = errors.New("mercadopago request failed")
	ErrResponseInvalid  = errors.New("mercadopago response invalid")
	ErrPermissionDenied = errors.New("mercadopago permission denied")
	ErrUnavailable      = errors.New("mercadopago endpoint unavailable")
	ErrValidation       = errors.New("mercadopago validation failed")
)

const (
	defaultAPIBaseURL = "https://api.mercadopago.com"
	defaultTimeout    = 12 * time.Second
)

// 支付单终态状态值
const (
	PaymentStatusApproved    = "approved"
	PaymentStatusRefunded    = "refunded"
	PaymentStatusCancelled   = "cancelled"
	PaymentStatusChargedBack = "charged_back"
)

// Config Mercado Pago 渠道配置。
type Config struct {
	AccessToken string `json:"access_token"`
	APIBaseURL  string `json:"api_base_url"`
}

// PaymentResult 查询支付单返回。
type PaymentResult struct {
	ID           string
	Status       string
	StatusDetail string
	Raw          map[string]interface{}
}

// TransferInput 站内转账输入。
type TransferInput struct {
	PayeeID        string
	AmountMinor    int64
	Currency       string
	Description    string
	IdempotencyKey string
}

// TransferResult 站内转账返回。
type TransferResult struct {
	TransferID string
	Status     string
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
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return fmt.Errorf("%w: access_token is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return fmt.Errorf("%w: api_base_url is required", ErrConfigInvalid)
	}
	if _, err := url.ParseRequestURI(strings.TrimSpace(cfg.APIBaseURL)); err != nil {
		return fmt.Errorf("%w: api_base_url is invalid", ErrConfigInvalid)
	}
	return nil
}

// GetPayment 查询支付单状态，用于退款核验。
func GetPayment(ctx context.Context, cfg *Config, paymentID string) (*PaymentResult, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return nil, fmt.Errorf("%w: payment_id is required", ErrConfigInvalid)
	}

	path := fmt.Sprintf("/v1/payments/%s", url.PathEscape(paymentID))
	respBody, statusCode, err := doRequest(ctx, cfg, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, err
	}
	if statusCode < 200 || statusCode >= 300 {
		return nil, classifyStatusError(statusCode, respBody, "query payment")
	}

	raw, err := decodeRawMap(respBody)
	if err != nil {
		return nil, err
	}
	result := &PaymentResult{Raw: raw}
	result.ID = strings.TrimSpace(readString(raw, "id"))
	result.Status = strings.ToLower(strings.TrimSpace(readString(raw, "status")))
	result.StatusDetail = strings.TrimSpace(readString(raw, "status_detail"))
	if result.ID == "" || result.Status == "" {
		return nil, fmt.Errorf("%w: missing payment id or status", ErrResponseInvalid)
	}
	return result, nil
}

// SendMoney 向联盟客账户发起站内转账。
func SendMoney(ctx context.Context, cfg *Config, input TransferInput) (*TransferResult, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	payeeID := strings.TrimSpace(input.PayeeID)
	if payeeID == "" {
		return nil, fmt.Errorf("%w: payee_id is required", ErrConfigInvalid)
	}
	if input.AmountMinor <= 0 {
		return nil, fmt.Errorf("%w: amount must be greater than zero", ErrConfigInvalid)
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		return nil, fmt.Errorf("%w: currency is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(input.IdempotencyKey) == "" {
		return nil, fmt.Errorf("%w: idempotency_key is required", ErrConfigInvalid)
	}

	// send-money 接口按货币主单位计价
	payload := map[string]interface{}{
		"amount":      fromMinorAmount(input.AmountMinor),
		"currency_id": currency,
		"receiver": map[string]interface{}{
			"id": payeeID,
		},
	}
	if description := strings.TrimSpace(input.Description); description != "" {
		payload["description"] = description
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal transfer payload failed", ErrRequestFailed)
	}

	respBody, statusCode, err := doRequest(ctx, cfg, http.MethodPost, "/v1/account/send-money", body, input.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if statusCode < 200 || statusCode >= 300 {
		return nil, classifyStatusError(statusCode, respBody, "send money")
	}

	raw, err := decodeRawMap(respBody)
	if err != nil {
		return nil, err
	}
	result := &TransferResult{Raw: raw}
	result.TransferID = strings.TrimSpace(readString(raw, "id"))
	if result.TransferID == "" {
		result.TransferID = strings.TrimSpace(readString(raw, "transaction_id"))
	}
	result.Status = strings.ToLower(strings.TrimSpace(readString(raw, "status")))
	if result.TransferID == "" {
		return nil, fmt.Errorf("%w: missing transfer id", ErrResponseInvalid)
	}
	return result, nil
}

func (c *Config) normalize() {
	c.AccessToken = strings.TrimSpace(c.AccessToken)
	c.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.APIBaseURL), "/")
	if c.APIBaseURL == "" {
		c.APIBaseURL = defaultAPIBaseURL
	}
}

// classifyStatusError 将网关错误响应归类为哨兵错误，错误信息折叠 cause 明细。
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
	message := strings.TrimSpace(readString(raw, "message"))
	if message == "" {
		message = strings.TrimSpace(readString(raw, "error"))
	}
	causes := make([]string, 0)
	if items, ok := raw["cause"].([]interface{}); ok {
		for _, item := range items {
			mapped, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			code := strings.TrimSpace(readString(mapped, "code"))
			if code != "" {
				causes = append(causes, code)
			}
		}
	}
	if len(causes) > 0 {
		return fmt.Sprintf("%s (causes: %s)", message, strings.Join(causes, ","))
	}
	if message == "" {
		return "no error detail"
	}
	return message
}

func doRequest(ctx context.Context, cfg *Config, method, path string, body []byte, idempotencyKey string) ([]byte, int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/") + path
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: build request failed", ErrRequestFailed)
	}
	req.Header.Set("Authorization", "Bearer "+cfg.AccessToken)
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	if key := strings.TrimSpace(idempotencyKey); key != "" {
		req.Header.Set("X-Idempotency-Key", key)
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

func fromMinorAmount(minor int64) float64 {
	value, _ := decimal.NewFromInt(minor).Shift(-2).Float64()
	return value
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
