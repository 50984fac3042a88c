package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/corefield/agentcore/internal/tools"
	"github.com/corefield/agentcore/pkg/models"
)

const (
	webFetchTimeout  = 30 * time.Second
	maxWebFetchBytes = 1 << 20
)

// WebFetchTool performs an HTTP GET with a response-size cap and an
// SSRF guard: loopback, link-local, and private targets are rejected
// at dial time (after DNS resolution, so rebinding doesn't bypass the
// check) unless the host is explicitly allow-listed.
type WebFetchTool struct {
	// AllowHosts lists hosts exempt from the private-target check,
	// e.g. a local dev server the operator trusts.
	AllowHosts []string

	client *http.Client
}

// NewWebFetchTool builds the tool with its guarded HTTP client.
func NewWebFetchTool(allowHosts []string) *WebFetchTool {
	t := &WebFetchTool{AllowHosts: allowHosts}
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	t.client = &http.Client{
		Timeout: webFetchTimeout,
		Transport: &http.Transport{
			DialContext: t.safeDialContext(dialer),
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("too many redirects")
			}
			if t.isPrivateHost(req.URL.Hostname()) {
				return fmt.Errorf("redirect target is a private or local host")
			}
			return nil
		},
	}
	return t
}

func (t *WebFetchTool) Definition() models.ToolDefinition {
	return models.ToolDefinition{
		Name:        "web_fetch",
		Description: "Fetch a URL over HTTP GET and return up to 1MiB of the response body.",
		Category:    models.CategoryWeb,
		ParameterSchema: models.JSONSchema{
			"type": "object",
			"properties": map[string]any{
				"url": map[string]any{"type": "string", "description": "HTTP or HTTPS URL to fetch"},
			},
			"required": []any{"url"},
		},
	}
}

func (t *WebFetchTool) Invoke(ctx context.Context, execCtx tools.ExecutionContext, args json.RawMessage) (*tools.Result, error) {
	var in struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("decode args: %w", err)
	}

	parsed, err := url.Parse(in.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return &tools.Result{Output: fmt.Sprintf("invalid URL: %s", in.URL), IsError: true}, nil
	}
	if t.isPrivateHost(parsed.Hostname()) {
		return &tools.Result{Output: "fetching private or local network hosts is not allowed", IsError: true}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, in.URL, nil)
	if err != nil {
		return &tools.Result{Output: err.Error(), IsError: true}, nil
	}
	req.Header.Set("User-Agent", "agentcore/1.0")

	resp, err := t.client.Do(req)
	if err != nil {
		return &tools.Result{Output: fmt.Sprintf("fetch %s: %v", in.URL, err), IsError: true}, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxWebFetchBytes+1))
	if err != nil {
		return &tools.Result{Output: fmt.Sprintf("read body: %v", err), IsError: true}, nil
	}
	truncated := false
	if len(body) > maxWebFetchBytes {
		body = body[:maxWebFetchBytes]
		truncated = true
	}

	out := string(body)
	if truncated {
		out += "\n[response truncated]"
	}
	return &tools.Result{
		Output:   out,
		IsError:  resp.StatusCode >= 400,
		Metadata: map[string]any{"status": resp.StatusCode, "content_type": resp.Header.Get("Content-Type"), "truncated": truncated},
	}, nil
}

// safeDialContext validates every resolved address before connecting,
// so a hostname resolving to a private range is blocked even when the
// name itself looks public.
func (t *WebFetchTool) safeDialContext(dialer *net.Dialer) func(context.Context, string, string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		if t.allowed(host) {
			return dialer.DialContext(ctx, network, addr)
		}
		if ip := net.ParseIP(host); ip != nil {
			if isPrivateOrRestrictedIP(ip) {
				return nil, fmt.Errorf("blocked private or local target: %s", host)
			}
			return dialer.DialContext(ctx, network, addr)
		}

		addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
		if err != nil {
			return nil, err
		}
		for _, candidate := range addrs {
			if !isPrivateOrRestrictedIP(candidate.IP) {
				return dialer.DialContext(ctx, network, net.JoinHostPort(candidate.IP.String(), port))
			}
		}
		return nil, fmt.Errorf("all resolved addresses for %s are private or restricted", host)
	}
}

func (t *WebFetchTool) allowed(host string) bool {
	for _, h := range t.AllowHosts {
		if strings.EqualFold(h, host) {
			return true
		}
	}
	return false
}

func (t *WebFetchTool) isPrivateHost(host string) bool {
	if t.allowed(host) {
		return false
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".local") {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return isPrivateOrRestrictedIP(ip)
	}
	return false
}

func isPrivateOrRestrictedIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsPrivate() || ip.IsUnspecified() {
		return true
	}
	// Carrier-grade NAT (100.64.0.0/10).
	if v4 := ip.To4(); v4 != nil && v4[0] == 100 && v4[1] >= 64 && v4[1] < 128 {
		return true
	}
	return false
}
