// Package membership is a thin client for the wallet/membership provider.
// Requests carry a short-lived HMAC-SHA256 signed bearer token; the token
// format is fixed by the provider's API.
package membership

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/karvy-labs/loyaltypulse/internal/db"
	"github.com/karvy-labs/loyaltypulse/internal/metrics"
)

// Config holds provider connection settings.
type Config struct {
	BaseURL   string
	ProgramID string
	TierID    string
	APIKey    string
	APISecret string
	Timeout   time.Duration
}

// Result carries the provider's member handle after enroll/update.
type Result struct {
	ID      string
	PassURL string
}

// Client is a stateless signed-request client for the membership provider.
type Client struct {
	httpClient *http.Client
	cfg        Config
	logger     *zap.Logger

	// now is replaceable in tests; it anchors token validity.
	now func() time.Time
}

// NewClient creates a membership provider client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.TierID == "" {
		cfg.TierID = "base"
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

func base64urlEncode(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

// token builds the short-lived signed bearer token. iat is backdated 5s to
// absorb clock skew against the provider.
func (c *Client) token() (string, error) {
	header, err := json.Marshal(map[string]string{"typ": "JWT", "alg": "HS256"})
	if err != nil {
		return "", fmt.Errorf("marshal token header: %w", err)
	}

	now := c.now().Unix()
	payload, err := json.Marshal(map[string]any{
		"uid": c.cfg.APIKey,
		"iat": now - 5,
		"exp": now + 3600,
	})
	if err != nil {
		return "", fmt.Errorf("marshal token payload: %w", err)
	}

	unsigned := base64urlEncode(header) + "." + base64urlEncode(payload)

	mac := hmac.New(sha256.New, []byte(c.cfg.APISecret))
	mac.Write([]byte(unsigned))

	return unsigned + "." + base64urlEncode(mac.Sum(nil)), nil
}

type person struct {
	DisplayName  string `json:"displayName"`
	Forename     string `json:"forename"`
	MobileNumber string `json:"mobileNumber"`
	ExternalID   string `json:"externalId"`
}

type memberPayload struct {
	ExternalID string            `json:"externalId"`
	TierID     string            `json:"tierId"`
	ProgramID  string            `json:"programId"`
	Person     person            `json:"person"`
	MetaData   map[string]string `json:"metaData,omitempty"`
	Status     string            `json:"status,omitempty"`
}

type memberResponse struct {
	ID string `json:"id"`
}

func (c *Client) payloadFor(customer *db.Customer) memberPayload {
	return memberPayload{
		ExternalID: customer.ID,
		TierID:     c.cfg.TierID,
		ProgramID:  c.cfg.ProgramID,
		Person: person{
			DisplayName:  customer.Name,
			Forename:     customer.Name,
			MobileNumber: customer.MobileNo,
			ExternalID:   customer.ID,
		},
		MetaData: map[string]string{
			"source":   "loyaltypulse",
			"customer": customer.ID,
		},
	}
}

// Enroll registers the customer as a new member with the provider.
func (c *Client) Enroll(ctx context.Context, customer *db.Customer) (*Result, error) {
	payload := c.payloadFor(customer)
	payload.Status = "ENROLLED"

	var resp memberResponse
	if err := c.do(ctx, http.MethodPost, "/members/member", payload, &resp); err != nil {
		metrics.RecordMembershipSync("enroll", "error")
		return nil, err
	}

	metrics.RecordMembershipSync("enroll", "ok")
	c.logger.Info("member enrolled",
		zap.String("customer_id", customer.ID),
		zap.String("member_id", resp.ID),
	)

	return &Result{ID: resp.ID, PassURL: c.passURL(resp.ID)}, nil
}

// Update pushes the customer's current details to the provider.
func (c *Client) Update(ctx context.Context, customer *db.Customer) (*Result, error) {
	payload := c.payloadFor(customer)

	var resp memberResponse
	if err := c.do(ctx, http.MethodPut, "/members/member", payload, &resp); err != nil {
		metrics.RecordMembershipSync("update", "error")
		return nil, err
	}

	metrics.RecordMembershipSync("update", "ok")
	c.logger.Info("member updated",
		zap.String("customer_id", customer.ID),
		zap.String("member_id", resp.ID),
	)

	return &Result{ID: resp.ID, PassURL: c.passURL(resp.ID)}, nil
}

// Delete removes the member record at the provider.
func (c *Client) Delete(ctx context.Context, customerID string) error {
	payload := map[string]string{
		"externalId": customerID,
		"programId":  c.cfg.ProgramID,
	}

	if err := c.do(ctx, http.MethodDelete, "/members/member", payload, nil); err != nil {
		metrics.RecordMembershipSync("delete", "error")
		return err
	}

	metrics.RecordMembershipSync("delete", "ok")
	return nil
}

type fieldFilter struct {
	FilterField    string `json:"filterField"`
	FilterValue    string `json:"filterValue"`
	FilterOperator string `json:"filterOperator"`
}

type filterGroup struct {
	Condition    string        `json:"condition"`
	FieldFilters []fieldFilter `json:"fieldFilters"`
}

type listRequest struct {
	Filters struct {
		Limit        int           `json:"limit"`
		Offset       int           `json:"offset"`
		FilterGroups []filterGroup `json:"filterGroups"`
		OrderAsc     bool          `json:"orderAsc"`
	} `json:"filters"`
	EmailAsCsv bool `json:"emailAsCsv"`
}

// FindByMobile looks up an existing member by mobile number. Returns the
// member id, or empty when the provider has no match.
func (c *Client) FindByMobile(ctx context.Context, mobile string) (string, error) {
	var req listRequest
	req.Filters.OrderAsc = true
	req.Filters.FilterGroups = []filterGroup{{
		Condition: "AND",
		FieldFilters: []fieldFilter{
			{FilterField: "mobileNumber", FilterValue: mobile, FilterOperator: "eq"},
		},
	}}

	var resp struct {
		Result memberResponse `json:"result"`
	}
	path := "/members/member/list/" + c.cfg.ProgramID
	if err := c.do(ctx, http.MethodPost, path, req, &resp); err != nil {
		return "", err
	}

	return resp.Result.ID, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	token, err := c.token()
	if err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("membership request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("membership provider returned status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}

func (c *Client) passURL(memberID string) string {
	return c.cfg.BaseURL + "/" + memberID
}
