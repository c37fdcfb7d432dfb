package soil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/pepper-guardian/guardian/controller/fault"
)

const maxFeedBody = 1 << 20

// CloudAdapter reads the latest sample of a channel feed.
type CloudAdapter struct {
	Client *http.Client
	Logf   func(format string, args ...any)
}

// NewCloudAdapter returns an adapter using a dedicated http.Client. The
// request bound comes from CloudConfig.Timeout.
func NewCloudAdapter(logf func(string, ...any)) *CloudAdapter {
	return &CloudAdapter{Client: &http.Client{}, Logf: logf}
}

func (a *CloudAdapter) logf(format string, args ...any) {
	if a.Logf != nil {
		a.Logf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// FeedURL builds GET <host>/channels/{id}/feeds.json?api_key=..&results=1.
func FeedURL(c CloudConfig) (string, error) {
	host := strings.TrimSpace(c.Host)
	if host == "" {
		host = DefaultCloudHost
	}
	u, err := url.Parse(host)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("feed host %q must be an absolute URL", host)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/channels/" + url.PathEscape(c.ChannelID) + "/feeds.json"
	q := url.Values{}
	q.Set("api_key", c.APIKey)
	q.Set("results", "1")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type feedPayload struct {
	Feeds json.RawMessage `json:"feeds"`
}

func (a *CloudAdapter) Acquire(ctx context.Context, cfg Config) (Reading, error) {
	cc := cfg.Cloud
	src := ModeCloud.String()
	if err := cc.Validate(); err != nil {
		return Reading{}, err
	}
	feedURL, err := FeedURL(cc)
	if err != nil {
		return Reading{}, fault.New(fault.Configuration, src, "build feed url", err)
	}

	ctx, cancel := context.WithTimeout(ctx, cc.Timeout())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return Reading{}, fault.New(fault.Configuration, src, "build request", err)
	}
	client := a.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Reading{}, classifyHTTP(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Reading{}, fault.Newf(fault.Connection, src, "GET feed", "HTTP %d %s",
			resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBody))
	if err != nil {
		return Reading{}, classifyHTTP(ctx, err)
	}

	var payload feedPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return Reading{}, fault.New(fault.Protocol, src, "decode feed", err)
	}
	if len(payload.Feeds) == 0 || string(payload.Feeds) == "null" {
		return Reading{}, fault.Newf(fault.Protocol, src, "decode feed", "response has no feeds array")
	}
	var feeds []map[string]json.RawMessage
	if err := json.Unmarshal(payload.Feeds, &feeds); err != nil {
		return Reading{}, fault.New(fault.Protocol, src, "decode feed", err)
	}
	if len(feeds) == 0 {
		return Reading{}, fault.Newf(fault.Protocol, src, "latest sample", "channel %s has no data yet", cc.ChannelID)
	}
	latest := feeds[len(feeds)-1]

	raw, _ := json.Marshal(latest)
	a.logf("CLOUD: channel %s sample created_at=%s (%s): %s",
		cc.ChannelID, stringValue(latest["created_at"]), humanize.Bytes(uint64(len(body))), raw)

	var r Reading
	for _, f := range Fields {
		id := cc.Mapping.Source(f)
		v, ok := numericValue(latest[id])
		if !ok {
			a.logf("CLOUD: %s (%s) absent or not numeric, using 0", f, id)
		}
		r.set(f, v)
	}
	return r, nil
}

func classifyHTTP(ctx context.Context, err error) error {
	src := ModeCloud.String()
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded ||
		(errors.As(err, &ne) && ne.Timeout()) {
		return fault.New(fault.Timeout, src, "GET feed", err)
	}
	return fault.New(fault.Connection, src, "GET feed", err)
}

// numericValue accepts JSON numbers and numeric strings. Missing, null,
// non-numeric and non-finite values yield (0, false).
func numericValue(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

func stringValue(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return string(raw)
	}
	return s
}
