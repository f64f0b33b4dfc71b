package fetch

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/notelo/internal/source"
)

// DefaultProxies are tried in order after a direct fetch fails.
var DefaultProxies = []string{
	"https://api.allorigins.win/raw?url={url}",
	"https://corsproxy.io/?{url}",
}

// ProxyChain fetches web pages directly and then through each proxy in turn.
// The first success wins.
type ProxyChain struct {
	Client *Client
	// Proxies are URL templates. "{url}" is replaced with the query escaped
	// target; a template without the placeholder is used as a prefix.
	Proxies []string
}

// ProxyURL expands a proxy template for target.
func ProxyURL(template, target string) string {
	if strings.Contains(template, "{url}") {
		return strings.ReplaceAll(template, "{url}", url.QueryEscape(target))
	}
	return template + target
}

// Page returns the UTF-8 markup of target. When every attempt fails the
// error is a FetchFailure wrapping the last cause.
func (p *ProxyChain) Page(ctx context.Context, target string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(target))
	if err != nil || !isHTTPScheme(u) || u.Host == "" {
		return "", source.InvalidSource(target, "not an http(s) URL", err)
	}
	target = u.String()

	attempts := append([]string{target}, p.expand(target)...)
	var lastErr error
	for i, a := range attempts {
		markup, err := p.Client.GetHTML(ctx, a)
		if err == nil {
			if i > 0 {
				log.Ctx(ctx).Debug().Str("url", target).Int("proxy", i).Msg("fetched through proxy")
			}
			return markup, nil
		}
		if errors.Is(err, context.Canceled) {
			return "", source.FetchFailure(target, "cancelled", err)
		}
		log.Ctx(ctx).Debug().Err(err).Str("url", target).Int("attempt", i).Msg("page fetch failed")
		lastErr = err
	}
	msg := "direct fetch failed"
	if len(attempts) > 1 {
		msg = "direct fetch and all proxies failed"
	}
	return "", source.FetchFailure(target, msg, lastErr)
}

func (p *ProxyChain) expand(target string) []string {
	out := make([]string, 0, len(p.Proxies))
	for _, t := range p.Proxies {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, ProxyURL(t, target))
		}
	}
	return out
}
