package bidcard

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/instabids/bidcard-cli/internal/model"
	"github.com/instabids/bidcard-cli/internal/resilience"
)

// DiscoveryEvent is the payload posted to the contractor discovery pipeline
// after a conversion. Discovery owns everything downstream; the lifecycle
// service only hands over identifiers.
type DiscoveryEvent struct {
	OfficialBidCardID string `json:"official_bid_card_id"`
	BidNumber         string `json:"bid_number"`
	SourceBidCardID   string `json:"source_bid_card_id"`
	ProjectType       string `json:"project_type"`
	ZipCode           string `json:"zip_code"`
}

// DiscoveryNotifier delivers conversion events to the discovery webhook with
// retry. Delivery failures are logged and never fail the conversion.
type DiscoveryNotifier struct {
	url     string
	client  *http.Client
	retry   resilience.RetryConfig
	timeout time.Duration
}

// NewDiscoveryNotifier creates a notifier for the given webhook URL.
func NewDiscoveryNotifier(url string, timeout time.Duration, retry resilience.RetryConfig) *DiscoveryNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &DiscoveryNotifier{
		url:     url,
		client:  &http.Client{Timeout: timeout},
		retry:   retry,
		timeout: timeout,
	}
}

// Notify posts the conversion event and retries transient failures.
func (n *DiscoveryNotifier) Notify(ctx context.Context, official *model.OfficialBidCard) error {
	event := DiscoveryEvent{
		OfficialBidCardID: official.ID,
		BidNumber:         official.BidNumber,
		SourceBidCardID:   official.Document.Conversion.SourceBidCardID,
		ProjectType:       official.ProjectType,
		ZipCode:           official.ZipCode,
	}
	body, err := json.Marshal(event)
	if err != nil {
		return eris.Wrap(err, "discovery: marshal event")
	}

	cfg := n.retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger("discovery", "notify")
	}

	return resilience.Do(ctx, cfg, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
		if err != nil {
			return eris.Wrap(err, "discovery: build request")
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.client.Do(req)
		if err != nil {
			return eris.Wrap(err, "discovery: post event")
		}
		defer func() {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}()

		if resp.StatusCode >= 400 {
			err := eris.Errorf("discovery: webhook returned %d", resp.StatusCode)
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return resilience.NewTransientError(err, resp.StatusCode)
			}
			return err
		}
		return nil
	})
}

// NotifyAsync delivers the event with a background context and logs the
// outcome. Used for fire-and-forget delivery from the conversion path.
func (n *DiscoveryNotifier) NotifyAsync(official *model.OfficialBidCard) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := n.Notify(ctx, official); err != nil {
		zap.L().Error("discovery notify failed",
			zap.String("official_bid_card_id", official.ID),
			zap.Error(err),
		)
		return
	}
	zap.L().Info("discovery notified",
		zap.String("official_bid_card_id", official.ID),
		zap.String("bid_number", official.BidNumber),
	)
}
