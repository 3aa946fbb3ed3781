// Package betsink 把引擎的下注请求转发给站点侧的下注执行服务。
// 执行服务只负责把金额提交到站点，接受/拒绝由它返回；引擎不重试，
// 被拒绝的请求当作本回合放弃下注处理。
package betsink

import (
	"context"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/crasher/pkg/config"
)

var log = logrus.WithField("component", "betsink")

// ErrBetRejected 执行端明确拒绝了下注请求（余额不足、站点限注等）
var ErrBetRejected = errors.New("bet request rejected")

// Client 通过 HTTP 提交下注请求。实现 ports.BetSink
type Client struct {
	http     *resty.Client
	apiToken string
}

// New 创建下注执行端客户端。apiToken 来自 secretstore，可为空（执行端未开鉴权时）
func New(cfg config.BetSinkConfig, apiToken string) *Client {
	c := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(time.Duration(cfg.TimeoutSeconds) * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "crasher-bot")
	return &Client{http: c, apiToken: apiToken}
}

type betRequest struct {
	RequestID string `json:"requestId"` // 幂等键，执行端用它去重
	Amount    string `json:"amount"`
}

type betResponse struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// RequestBet 提交一次下注。返回 (false, nil) 表示执行端明确拒绝，
// 返回 error 表示请求本身失败（网络、超时），两者在引擎侧都按放弃处理
func (c *Client) RequestBet(ctx context.Context, amount decimal.Decimal) (bool, error) {
	reqID := uuid.New().String()
	var out betResponse

	req := c.http.R().
		SetContext(ctx).
		SetBody(betRequest{RequestID: reqID, Amount: amount.String()}).
		SetResult(&out)
	if c.apiToken != "" {
		req.SetHeader("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := req.Post("/api/bets")
	if err != nil {
		return false, errors.Wrap(err, "post bet request")
	}
	if resp.StatusCode() >= http.StatusBadRequest && resp.StatusCode() < http.StatusInternalServerError {
		// 4xx 是执行端的明确拒绝，不是传输故障
		return false, errors.Wrapf(ErrBetRejected, "status %d: %s", resp.StatusCode(), resp.String())
	}
	if resp.StatusCode() != http.StatusOK {
		return false, errors.Errorf("bet request failed: status %d: %s", resp.StatusCode(), resp.String())
	}
	if !out.Accepted {
		log.Warnf("下注被拒绝 (requestId=%s): %s", reqID, out.Reason)
		return false, nil
	}

	log.Debugf("下注已接受 (requestId=%s, amount=%s)", reqID, amount.String())
	return true, nil
}
