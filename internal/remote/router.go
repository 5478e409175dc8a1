package remote

import (
	"context"
	"fmt"
	"strings"

	"github.com/theirongolddev/tokenwise/internal/config"
)

// Route sends models whose normalized name starts with Prefix to Caller.
type Route struct {
	Prefix string
	Caller Caller
}

// Router dispatches by model name. The first matching route wins.
type Router struct {
	routes []Route
}

// NewRouter returns a router over routes.
func NewRouter(routes ...Route) *Router {
	return &Router{routes: routes}
}

// FromConfig wires the providers that have an API key.
func FromConfig(cfg config.Config) *Router {
	var routes []Route
	if key := config.GetAnthropicAPIKey(cfg); key != "" {
		routes = append(routes, Route{Prefix: "claude", Caller: NewAnthropic(key, cfg.Remote.AnthropicBaseURL, cfg.Remote.Timeout.Duration)})
	}
	if key := config.GetOpenAIAPIKey(cfg); key != "" {
		oa := NewOpenAI(key, cfg.Remote.OpenAIBaseURL, cfg.Remote.Timeout.Duration)
		for _, p := range []string{"gpt", "o1", "o3", "o4"} {
			routes = append(routes, Route{Prefix: p, Caller: oa})
		}
	}
	return NewRouter(routes...)
}

// Len reports the number of configured routes.
func (r *Router) Len() int { return len(r.routes) }

// CallerFor returns the caller for model.
func (r *Router) CallerFor(model string) (Caller, error) {
	name := config.NormalizeModelName(model)
	for _, rt := range r.routes {
		if strings.HasPrefix(name, rt.Prefix) {
			return rt.Caller, nil
		}
	}
	return nil, fmt.Errorf("%w %q", ErrNoProvider, model)
}

func (r *Router) Complete(ctx context.Context, req Request) (Response, error) {
	c, err := r.CallerFor(req.Model)
	if err != nil {
		return Response{}, err
	}
	return c.Complete(ctx, req)
}
