package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

var ErrNoRoute = errors.New("no backend for path")

// PathMode says how the dashboard path is turned into the backend path.
type PathMode string

const (
	// KeepPath forwards the path unchanged.
	KeepPath PathMode = "keep"
	// StripPrefix removes the module prefix; an empty remainder becomes "/".
	StripPrefix PathMode = "strip"
	// RootPath always targets "/" on the backend.
	RootPath PathMode = "root"
	// ReplacePrefix swaps the module prefix for Route.Target.
	ReplacePrefix PathMode = "replace"
)

type Route struct {
	Module string   `json:"module"`
	Name   string   `json:"name"`
	Prefix string   `json:"prefix"`
	Origin string   `json:"origin"`
	Mode   PathMode `json:"mode"`
	Target string   `json:"target,omitempty"`
}

// DefaultRoutes is the dashboard's module table.
func DefaultRoutes() []Route {
	return []Route{
		{Module: "auth", Name: "Auth Service", Prefix: "/api/services", Origin: "http://localhost:6800", Mode: ReplacePrefix, Target: "/api"},
		{Module: "outpatient", Name: "Outpatient Service", Prefix: "/outpatient", Origin: "http://localhost:6830", Mode: KeepPath},
		{Module: "inpatient", Name: "Inpatient Service", Prefix: "/inpatient", Origin: "http://localhost:6831", Mode: KeepPath},
		{Module: "diagnostics", Name: "Diagnostics Service", Prefix: "/diagnostics", Origin: "http://localhost:6832", Mode: KeepPath},
		{Module: "operation-theater", Name: "Operation Theater Service", Prefix: "/operation-theater", Origin: "http://localhost:6833", Mode: KeepPath},
		{Module: "pharmacy", Name: "Pharmacy Service", Prefix: "/pharmacy", Origin: "http://localhost:6834", Mode: KeepPath},
		{Module: "rostering", Name: "Rostering Service", Prefix: "/rostering", Origin: "http://localhost:6840", Mode: RootPath},
		{Module: "finance", Name: "Finance Service", Prefix: "/finance", Origin: "http://localhost:6850", Mode: StripPrefix},
		{Module: "hr", Name: "HR Service", Prefix: "/hr", Origin: "http://localhost:6860", Mode: RootPath},
		{Module: "purchasing", Name: "Purchasing Service", Prefix: "/purchasing", Origin: "http://localhost:6870", Mode: RootPath},
	}
}

// WithOrigins returns a copy of routes with origins replaced per module.
func WithOrigins(routes []Route, overrides map[string]string) []Route {
	out := make([]Route, len(routes))
	copy(out, routes)
	for i := range out {
		if origin, ok := overrides[out[i].Module]; ok && origin != "" {
			out[i].Origin = origin
		}
	}
	return out
}

// UpstreamPath maps a dashboard path onto the backend path for this route.
func (r Route) UpstreamPath(path string) string {
	rest := strings.TrimPrefix(path, r.Prefix)
	switch r.Mode {
	case StripPrefix:
		if rest == "" {
			return "/"
		}
		return rest
	case RootPath:
		return "/"
	case ReplacePrefix:
		return r.Target + rest
	default:
		return path
	}
}

func (r Route) matches(path string) bool {
	if !strings.HasPrefix(path, r.Prefix) {
		return false
	}
	return len(path) == len(r.Prefix) || path[len(r.Prefix)] == '/'
}

type backend struct {
	route Route
	proxy *httputil.ReverseProxy
}

// Gateway reverse-proxies dashboard paths to module backends.
type Gateway struct {
	backends []backend
	log      *zap.Logger
}

func New(routes []Route, log *zap.Logger) (*Gateway, error) {
	if log == nil {
		log = zap.NewNop()
	}

	g := &Gateway{log: log}
	for _, rt := range routes {
		target, err := url.Parse(rt.Origin)
		if err != nil || target.Scheme == "" || target.Host == "" {
			return nil, fmt.Errorf("invalid origin %q for module %s", rt.Origin, rt.Module)
		}
		g.backends = append(g.backends, backend{route: rt, proxy: g.newProxy(rt, target)})
	}

	// Longest prefix first.
	sort.SliceStable(g.backends, func(i, j int) bool {
		return len(g.backends[i].route.Prefix) > len(g.backends[j].route.Prefix)
	})
	return g, nil
}

func (g *Gateway) newProxy(rt Route, target *url.URL) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			g.log.Warn("gateway upstream error",
				zap.String("module", rt.Module),
				zap.String("origin", rt.Origin),
				zap.String("path", r.URL.Path),
				zap.Error(err),
			)
			writeError(w, http.StatusBadGateway, "upstream unavailable", rt.Name)
		},
	}
}

// Routes lists the table in match order.
func (g *Gateway) Routes() []Route {
	out := make([]Route, 0, len(g.backends))
	for _, b := range g.backends {
		out = append(out, b.route)
	}
	return out
}

// Match finds the route for a dashboard path and the backend path to use.
func (g *Gateway) Match(path string) (Route, string, error) {
	for _, b := range g.backends {
		if b.route.matches(path) {
			return b.route, b.route.UpstreamPath(path), nil
		}
	}
	return Route{}, "", ErrNoRoute
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	for _, b := range g.backends {
		if !b.route.matches(r.URL.Path) {
			continue
		}
		out := r.Clone(r.Context())
		out.URL.Path = b.route.UpstreamPath(r.URL.Path)
		out.URL.RawPath = ""
		b.proxy.ServeHTTP(w, out)
		return
	}

	writeError(w, http.StatusNotFound, ErrNoRoute.Error(), r.URL.Path)
}

func writeError(w http.ResponseWriter, status int, msg, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg, "details": details})
}
