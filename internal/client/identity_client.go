package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"milestone-service/internal/model"
	"milestone-service/pkg/circuitbreaker"
	"milestone-service/pkg/util"
)

// PoolMember is one member of a mentor or talent pool as the identity
// service sees it. Members with LeftAt set keep history but cannot receive
// new allocations.
type PoolMember struct {
	UserID   int64      `json:"user_id"`
	IsLeader bool       `json:"is_leader"`
	LeftAt   *time.Time `json:"left_at,omitempty"`
}

// IdentityClient resolves pool membership and leadership for a milestone.
type IdentityClient struct {
	baseURL    string
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	signer     *util.ServiceTokenSigner
}

func NewIdentityClient(baseURL string, timeout time.Duration, signer *util.ServiceTokenSigner) *IdentityClient {
	return &IdentityClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		breaker: circuitbreaker.New(circuitbreaker.DefaultConfig()),
		signer:  signer,
	}
}

// GetPoolMembers returns the members of a milestone's pool.
func (c *IdentityClient) GetPoolMembers(ctx context.Context, milestoneID int64, role model.PoolRole) ([]PoolMember, error) {
	var members []PoolMember

	err := c.breaker.Execute(func() error {
		url := fmt.Sprintf("%s/milestones/%d/pools/%s/members", c.baseURL, milestoneID, role)
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
			return fmt.Errorf("identity service 5xx: %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("identity service error: %d", resp.StatusCode)
		}

		var body struct {
			Members []PoolMember `json:"members"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return err
		}
		members = body.Members
		return nil
	})
	if err != nil {
		return nil, err
	}

	return members, nil
}

// GetPoolLeader returns the current leader of a milestone's pool.
func (c *IdentityClient) GetPoolLeader(ctx context.Context, milestoneID int64, role model.PoolRole) (int64, error) {
	members, err := c.GetPoolMembers(ctx, milestoneID, role)
	if err != nil {
		return 0, err
	}
	for _, m := range members {
		if m.IsLeader && m.LeftAt == nil {
			return m.UserID, nil
		}
	}
	return 0, fmt.Errorf("no active leader for %s pool of milestone %d", role, milestoneID)
}

func (c *IdentityClient) authorize(req *http.Request) error {
	token, err := c.signer.Sign("identity-service")
	if err != nil {
		return fmt.Errorf("failed to sign service token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}
