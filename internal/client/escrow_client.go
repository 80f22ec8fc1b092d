// Package client holds the HTTP collaborators this engine consumes: the
// escrow funding service and the identity/role service. Both are narrow
// contracts; everything behind them is out of scope.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"milestone-service/pkg/circuitbreaker"
	"milestone-service/pkg/util"
)

// EscrowClient reads escrow funding state from the payment collaborator.
type EscrowClient struct {
	baseURL    string
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	signer     *util.ServiceTokenSigner
}

func NewEscrowClient(baseURL string, timeout time.Duration, signer *util.ServiceTokenSigner) *EscrowClient {
	return &EscrowClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		breaker: circuitbreaker.New(circuitbreaker.DefaultConfig()),
		signer:  signer,
	}
}

// GetEscrowBalance returns the funded balance for a milestone's escrow
// sub-wallet.
func (c *EscrowClient) GetEscrowBalance(ctx context.Context, milestoneID int64) (int64, error) {
	var balance int64

	err := c.breaker.Execute(func() error {
		url := fmt.Sprintf("%s/escrow/%d/balance", c.baseURL, milestoneID)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		if err := c.authorize(req); err != nil {
			return err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("escrow service 5xx: %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("escrow service error: %d", resp.StatusCode)
		}

		var body struct {
			Balance int64 `json:"balance"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return err
		}
		balance = body.Balance
		return nil
	})
	if err != nil {
		return 0, err
	}

	return balance, nil
}

func (c *EscrowClient) authorize(req *http.Request) error {
	token, err := c.signer.Sign("escrow-service")
	if err != nil {
		return fmt.Errorf("failed to sign service token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}
