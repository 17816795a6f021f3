package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Dan9191/advance-service/internal/config"
	"github.com/sirupsen/logrus"
)

var (
	// ErrBlocked means a web application firewall in front of the gateway answered instead of the
	// gateway itself. Retrying does not help.
	ErrBlocked = errors.New("mpesa: request blocked by intermediary")
	// ErrAuth means the gateway refused the consumer credentials.
	ErrAuth = errors.New("mpesa: authentication failed")
)

// APIError is a non-2xx answer from the gateway
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("mpesa: status %d: %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("mpesa: status %d: %s", e.StatusCode, e.Message)
}

const (
	registerAttempts = 3
	tokenSafetyGap   = time.Minute
)

// Client talks to the mobile-money gateway
type Client struct {
	cfg    config.MpesaConfig
	client *http.Client
	tokens TokenStore
	log    *logrus.Logger

	refreshMu sync.Mutex
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewClient initializes a new gateway client
func NewClient(cfg config.MpesaConfig, tokens TokenStore, log *logrus.Logger) *Client {
	if tokens == nil {
		tokens = NewMemoryTokenStore()
	}
	return &Client{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		tokens: tokens,
		log:    log,
		now:    time.Now,
		sleep:  sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// AccessToken returns a cached token or fetches a new one. Transient failures are retried with a
// doubling delay up to the configured number of attempts; a blocked response stops immediately.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	if token, ok, err := c.tokens.Get(ctx); err != nil {
		c.log.Warnf("Token cache read failed, fetching a new token: %v", err)
	} else if ok {
		return token, nil
	}

	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	// Another caller may have refreshed while we waited.
	if token, ok, err := c.tokens.Get(ctx); err == nil && ok {
		return token, nil
	}

	attempts := c.cfg.TokenAttempts
	delay := c.cfg.TokenBaseDelay
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		token, ttl, err := c.fetchToken(ctx)
		if err == nil {
			if err := c.tokens.Set(ctx, token, ttl); err != nil {
				c.log.Warnf("Failed to cache access token: %v", err)
			}
			return token, nil
		}
		if errors.Is(err, ErrBlocked) {
			c.log.Errorf("Token request blocked by intermediary, giving up")
			return "", err
		}
		lastErr = err
		c.log.WithFields(logrus.Fields{
			"attempt":  attempt,
			"attempts": attempts,
		}).Warnf("Token request failed: %v", err)
		if attempt == attempts {
			break
		}
		if err := c.sleep(ctx, delay); err != nil {
			return "", err
		}
		delay *= 2
	}
	return "", fmt.Errorf("token refresh failed after %d attempts: %w", attempts, lastErr)
}

func (c *Client) fetchToken(ctx context.Context) (string, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.cfg.BaseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create token request: %w", err)
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, fmt.Errorf("failed to read token response: %w", err)
	}
	if isBlocked(resp, body) {
		return "", 0, ErrBlocked
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden ||
		resp.StatusCode == http.StatusBadRequest {
		return "", 0, fmt.Errorf("%w: status %d", ErrAuth, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return "", 0, decodeAPIError(resp.StatusCode, body)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", 0, fmt.Errorf("failed to decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", 0, fmt.Errorf("%w: empty access token", ErrAuth)
	}

	ttl := 59 * time.Minute
	if secs, err := strconv.Atoi(tr.ExpiresIn); err == nil && time.Duration(secs)*time.Second > 2*tokenSafetyGap {
		ttl = time.Duration(secs)*time.Second - tokenSafetyGap
	}
	return tr.AccessToken, ttl, nil
}

// isBlocked recognises an HTML page served by a firewall in place of the JSON API
func isBlocked(resp *http.Response, body []byte) bool {
	if strings.Contains(strings.ToLower(string(body)), "incapsula") {
		return true
	}
	return strings.HasPrefix(strings.ToLower(resp.Header.Get("Content-Type")), "text/html")
}

func decodeAPIError(status int, body []byte) error {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil && (er.ErrorCode != "" || er.ErrorMessage != "") {
		return &APIError{StatusCode: status, Code: er.ErrorCode, Message: er.ErrorMessage}
	}
	return &APIError{StatusCode: status, Message: strings.TrimSpace(string(body))}
}

// post sends an authorised JSON request. A 401 drops the cached token and retries once.
func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		token, err := c.AccessToken(ctx)
		if err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("request to %s failed: %w", path, err)
		}
		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		c.log.Debugf("M-Pesa %s response: %s", path, string(respBody))

		if isBlocked(resp, respBody) {
			return ErrBlocked
		}
		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			c.log.Warnf("Access token rejected on %s, refreshing", path)
			if err := c.tokens.Invalidate(ctx); err != nil {
				c.log.Warnf("Failed to drop cached token: %v", err)
			}
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return decodeAPIError(resp.StatusCode, respBody)
		}
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("%w: token rejected twice", ErrAuth)
}

// password derives the online-checkout password for a timestamp
func (c *Client) password(timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(c.cfg.ShortCode + c.cfg.PassKey + timestamp))
}

func (c *Client) timestamp() string {
	return c.now().In(gatewayZone).Format("20060102150405")
}

// STKPush prompts the payer's phone to authorise a payment
func (c *Client) STKPush(ctx context.Context, req STKPushRequest) (*STKPushResponse, error) {
	ts := c.timestamp()
	body := stkPushBody{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          c.password(ts),
		Timestamp:         ts,
		TransactionType:   "CustomerPayBillOnline",
		Amount:            req.Amount.IntPart(),
		PartyA:            req.Phone,
		PartyB:            c.cfg.ShortCode,
		PhoneNumber:       req.Phone,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  req.AccountReference,
		TransactionDesc:   req.Description,
	}
	var resp STKPushResponse
	if err := c.post(ctx, "/mpesa/stkpush/v1/processrequest", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// QuerySTKStatus asks the gateway what happened to a push request
func (c *Client) QuerySTKStatus(ctx context.Context, checkoutRequestID string) (*STKQueryResponse, error) {
	ts := c.timestamp()
	body := stkQueryBody{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          c.password(ts),
		Timestamp:         ts,
		CheckoutRequestID: checkoutRequestID,
	}
	var resp STKQueryResponse
	if err := c.post(ctx, "/mpesa/stkpushquery/v1/query", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// B2CPayment pays money out to a customer's wallet
func (c *Client) B2CPayment(ctx context.Context, req B2CRequest) (*B2CResponse, error) {
	commandID := req.CommandID
	if commandID == "" {
		commandID = CommandBusinessPayment
	}
	body := b2cBody{
		OriginatorConversationID: req.OriginatorConversationID,
		InitiatorName:            c.cfg.InitiatorName,
		SecurityCredential:       c.cfg.SecurityCredential,
		CommandID:                commandID,
		Amount:                   req.Amount.IntPart(),
		PartyA:                   c.cfg.ShortCode,
		PartyB:                   req.Phone,
		Remarks:                  req.Remarks,
		QueueTimeOutURL:          c.cfg.QueueTimeoutURL,
		ResultURL:                c.cfg.ResultURL,
		Occasion:                 req.Occasion,
	}
	var resp B2CResponse
	if err := c.post(ctx, "/mpesa/b2c/v3/paymentrequest", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RegisterURLs registers the merchant validation and confirmation callbacks
func (c *Client) RegisterURLs(ctx context.Context) error {
	body := registerURLBody{
		ShortCode:       c.cfg.ShortCode,
		ResponseType:    "Completed",
		ConfirmationURL: c.cfg.ConfirmationURL,
		ValidationURL:   c.cfg.ValidationURL,
	}

	delay := c.cfg.TokenBaseDelay
	var lastErr error
	for attempt := 1; attempt <= registerAttempts; attempt++ {
		var resp map[string]any
		err := c.post(ctx, "/mpesa/c2b/v1/registerurl", body, &resp)
		if err == nil {
			c.log.Infof("Registered merchant callback URLs for short code %s", c.cfg.ShortCode)
			return nil
		}
		if errors.Is(err, ErrBlocked) {
			return err
		}
		lastErr = err
		c.log.Warnf("URL registration attempt %d/%d failed: %v", attempt, registerAttempts, err)
		if attempt == registerAttempts {
			break
		}
		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
		delay *= 2
	}
	return fmt.Errorf("url registration failed after %d attempts: %w", registerAttempts, lastErr)
}
