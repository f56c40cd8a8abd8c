package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

type accessTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type payoutAmount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type payoutItem struct {
	RecipientType string       `json:"recipient_type"`
	Amount        payoutAmount `json:"amount"`
	Receiver      string       `json:"receiver"`
	Note          string       `json:"note,omitempty"`
	SenderItemID  string       `json:"sender_item_id"`
}

type payoutBatchRequest struct {
	SenderBatchHeader struct {
		SenderBatchID string `json:"sender_batch_id"`
		EmailSubject  string `json:"email_subject"`
		RecipientType string `json:"recipient_type"`
	} `json:"sender_batch_header"`
	Items []payoutItem `json:"items"`
}

type payoutBatchResponse struct {
	BatchHeader struct {
		PayoutBatchID string `json:"payout_batch_id"`
		BatchStatus   string `json:"batch_status"`
	} `json:"batch_header"`
}

// PayPalPayouts sends mentor payouts through the PayPal Payouts API.
type PayPalPayouts struct {
	apiBase      string
	clientID     string
	clientSecret string
	client       *http.Client

	tokenMu     sync.RWMutex
	token       string
	tokenExpiry time.Time
}

func NewPayPalPayouts(apiBase, clientID, clientSecret string, client *http.Client) *PayPalPayouts {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &PayPalPayouts{
		apiBase:      strings.TrimRight(apiBase, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		client:       client,
	}
}

func (p *PayPalPayouts) accessToken(ctx context.Context) (string, error) {
	p.tokenMu.RLock()
	if p.token != "" && time.Now().Before(p.tokenExpiry) {
		token := p.token
		p.tokenMu.RUnlock()
		return token, nil
	}
	p.tokenMu.RUnlock()

	p.tokenMu.Lock()
	defer p.tokenMu.Unlock()

	if p.token != "" && time.Now().Before(p.tokenExpiry) {
		return p.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.apiBase+"/v1/oauth2/token", strings.NewReader("grant_type=client_credentials"))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(p.clientID, p.clientSecret)
	req.Header.Add("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to get access token, status: %s", resp.Status)
	}

	var tokenResp accessTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", err
	}

	p.token = tokenResp.AccessToken
	// refresh a minute early
	p.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn-60) * time.Second)
	return p.token, nil
}

func (p *PayPalPayouts) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	if req.Destination.PayPalEmail == "" {
		return nil, &TransferError{Provider: "paypal", Err: ErrNoDestination}
	}

	token, err := p.accessToken(ctx)
	if err != nil {
		return nil, &TransferError{Provider: "paypal", Retryable: true, Err: err}
	}

	var batch payoutBatchRequest
	batch.SenderBatchHeader.SenderBatchID = req.PayoutID
	batch.SenderBatchHeader.EmailSubject = "You have a payout!"
	batch.SenderBatchHeader.RecipientType = "EMAIL"
	batch.Items = []payoutItem{{
		RecipientType: "EMAIL",
		Amount: payoutAmount{
			Value:    req.Amount.StringFixed(2),
			Currency: req.Currency,
		},
		Receiver:     req.Destination.PayPalEmail,
		Note:         fmt.Sprintf("Mentor payout %s", req.PayoutID),
		SenderItemID: req.PayoutID,
	}}

	body, err := json.Marshal(batch)
	if err != nil {
		return nil, &TransferError{Provider: "paypal", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.apiBase+"/v1/payments/payouts", bytes.NewBuffer(body))
	if err != nil {
		return nil, &TransferError{Provider: "paypal", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("PayPal-Request-Id", req.PayoutID)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = ErrTransferTimeout
		}
		return nil, &TransferError{Provider: "paypal", Retryable: ctx.Err() == nil, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		retryable := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return nil, &TransferError{
			Provider:  "paypal",
			Retryable: retryable,
			Err:       fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody)),
		}
	}

	var out payoutBatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &TransferError{Provider: "paypal", Err: fmt.Errorf("decode payout response: %w", err)}
	}
	return &TransferResult{Provider: "paypal", Reference: out.BatchHeader.PayoutBatchID}, nil
}
