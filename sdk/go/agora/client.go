package agora

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. It is intentionally short to avoid hanging network calls.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the AgoraChain REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// ChatResult mirrors the response of the chat endpoint.
type ChatResult struct {
	Response  string        `json:"response"`
	Intent    PaymentIntent `json:"intent"`
	ThreadID  string        `json:"thread_id"`
	Proposal  *Proposal     `json:"proposal,omitempty"`
	CreatedAt int64         `json:"created_at"`
}

// PaymentIntent contains the tagged fields extracted from the agent reply.
type PaymentIntent struct {
	Title         string `json:"title"`
	Decision      string `json:"decision"`
	Summary       string `json:"summary"`
	Response      string `json:"response"`
	Amount        string `json:"amount"`
	WalletAddress string `json:"wallet_address"`
}

// Proposal describes the on-chain submission triggered by a chat message.
type Proposal struct {
	ID       string          `json:"id"`
	Target   string          `json:"target"`
	ValueWei json.RawMessage `json:"value_wei"`
	Deadline string          `json:"deadline"`
	Status   string          `json:"status"`
	TxHash   string          `json:"tx_hash"`
}

// ProposalRecord is a ledger entry of a confirmed proposal.
type ProposalRecord struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Decision  string `json:"decision"`
	Summary   string `json:"summary"`
	AmountWei string `json:"amount_wei"`
	Target    string `json:"target"`
	TxHash    string `json:"tx_hash"`
	Deadline  int64  `json:"deadline"`
	CreatedAt int64  `json:"created_at"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("agora api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("agora api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the AgoraChain API. When httpClient is
// nil, a default client with a sensible timeout is used.
func NewClient(rawURL string, httpClient *http.Client) *Client {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		panic(fmt.Sprintf("invalid base url: %v", err))
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}
}

// Chat sends a member message through the governance agent.
func (c *Client) Chat(ctx context.Context, message string) (ChatResult, error) {
	var result ChatResult
	payload := struct {
		Message string `json:"message"`
	}{Message: message}
	if err := c.post(ctx, "/api/v1/chat", payload, &result); err != nil {
		return ChatResult{}, err
	}
	return result, nil
}

// ListProposals fetches the most recent ledger entries.
func (c *Client) ListProposals(ctx context.Context, limit int) ([]ProposalRecord, error) {
	endpoint := "/api/v1/proposals"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var records []ProposalRecord
	if err := c.get(ctx, endpoint, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// GetProposal fetches a single ledger entry by identifier.
func (c *Client) GetProposal(ctx context.Context, id string) (ProposalRecord, error) {
	var record ProposalRecord
	endpoint := "/api/v1/proposals/" + url.PathEscape(id)
	if err := c.get(ctx, endpoint, &record); err != nil {
		return ProposalRecord{}, err
	}
	return record, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	rel := &url.URL{Path: path.Join(c.baseURL.Path, parsed.Path), RawQuery: parsed.RawQuery}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr APIError
		apiErr.StatusCode = resp.StatusCode
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, &apiErr)
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return &apiErr
	}

	if out == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
