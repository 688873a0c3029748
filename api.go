package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof" // register handlers
	"regexp"
	"strconv"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zephyrtronium/playbot/audit"
	"github.com/zephyrtronium/playbot/plugin"
)

// api returns a transport serving metrics and plugin management over HTTP.
func (b *Bot) api(listen string, metrics []prometheus.Collector) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		l, err := net.Listen("tcp", listen)
		if err != nil {
			return fmt.Errorf("couldn't start API server: %w", err)
		}
		srv := http.Server{
			Handler:     b.routes(metrics),
			ReadTimeout: 5 * time.Second,
			BaseContext: func(l net.Listener) context.Context { return ctx },
		}
		go func() {
			slog.InfoContext(ctx, "HTTP API server", slog.Any("addr", l.Addr()))
			err := srv.Serve(l)
			if err == http.ErrServerClosed {
				return
			}
			slog.ErrorContext(ctx, "HTTP API server closed", slog.Any("err", err))
		}()
		<-ctx.Done()
		// The context is now done, so it is obviously the wrong choice for
		// managing the shutdown.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}

func (b *Bot) routes(metrics []prometheus.Collector) *http.ServeMux {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(
		collectors.WithGoCollectorMemStatsMetricsDisabled(),
		collectors.WithGoCollectorRuntimeMetrics(
			collectors.GoRuntimeMetricsRule{
				Matcher: regexp.MustCompile(`^(/gc/gogc:percent|/gc/gomemlimit:bytes|/gc/heap/allocs:bytes|/gc/heap/goal:bytes|/memory/classes/total:bytes|/sched/gomaxprocs:threads|/sched/goroutines:goroutines|/sched/latencies:seconds)$`),
			},
		),
	))
	reg.MustRegister(metrics...)
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	mux.HandleFunc("GET /debug/pprof/", pprof.Index)
	mux.HandleFunc("GET /debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("GET /debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("GET /debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("GET /debug/pprof/trace", pprof.Trace)
	mux.HandleFunc("GET /api/plugins", b.apiPlugins)
	mux.HandleFunc("POST /api/plugins/{name}", b.apiLoad)
	mux.HandleFunc("DELETE /api/plugins/{name}", b.apiUnload)
	mux.HandleFunc("GET /api/commands", b.apiCommands)
	mux.HandleFunc("GET /api/channels", b.apiChannels)
	mux.HandleFunc("GET /api/audit", b.apiAudit)
	mux.HandleFunc("GET /api/ignore", b.apiIgnored)
	mux.HandleFunc("PUT /api/ignore/{nick}", b.apiIgnore)
	mux.HandleFunc("DELETE /api/ignore/{nick}", b.apiUnignore)
	return mux
}

// apiLog starts the log for an API request.
func apiLog(r *http.Request, api string) *slog.Logger {
	log := slog.With(slog.String("api", api), slog.String("trace", uuid.NewString()))
	log.InfoContext(r.Context(), "handle", slog.String("route", r.Pattern), slog.String("remote", r.RemoteAddr))
	return log
}

func jsonerror(w http.ResponseWriter, status int, msg string) {
	v := struct {
		Error  string `json:"error"`
		Status int    `json:"status"`
	}{
		Error:  msg,
		Status: status,
	}
	b, err := json.Marshal(&v)
	if err != nil {
		panic(err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(b)
}

// jsondata writes a successful response.
func jsondata[T any](ctx context.Context, log *slog.Logger, w http.ResponseWriter, data T) {
	u := struct {
		Data   T   `json:"data"`
		Status int `json:"status"`
	}{
		Data:   data,
		Status: http.StatusOK,
	}
	b, err := json.Marshal(&u)
	if err != nil {
		panic(err)
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(b); err != nil {
		log.ErrorContext(ctx, "write response failed", slog.Any("err", err))
	}
}

func (b *Bot) apiPlugins(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := apiLog(r, "plugins")
	defer log.InfoContext(ctx, "done")
	p, err := b.manager.Plugins(ctx)
	if err != nil {
		log.ErrorContext(ctx, "couldn't list plugins", slog.Any("err", err))
		jsonerror(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if p == nil {
		p = []plugin.Info{}
	}
	jsondata(ctx, log, w, p)
}

func (b *Bot) apiLoad(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := apiLog(r, "load")
	defer log.InfoContext(ctx, "done")
	name := r.PathValue("name")
	err := b.Load(ctx, name)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, errUnknownBuiltin):
		log.WarnContext(ctx, "no such plugin", slog.String("plugin", name))
		jsonerror(w, http.StatusNotFound, "no such plugin")
	case errors.Is(err, plugin.ErrDuplicatePlugin):
		jsonerror(w, http.StatusConflict, "plugin already loaded")
	default:
		log.ErrorContext(ctx, "couldn't load plugin", slog.String("plugin", name), slog.Any("err", err))
		jsonerror(w, http.StatusServiceUnavailable, err.Error())
	}
}

func (b *Bot) apiUnload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := apiLog(r, "unload")
	defer log.InfoContext(ctx, "done")
	name := r.PathValue("name")
	err := b.manager.Unload(ctx, plugin.ID(name))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, plugin.ErrUnknownPlugin):
		jsonerror(w, http.StatusNotFound, "plugin not loaded")
	default:
		log.ErrorContext(ctx, "couldn't unload plugin", slog.String("plugin", name), slog.Any("err", err))
		jsonerror(w, http.StatusServiceUnavailable, err.Error())
	}
}

func (b *Bot) apiCommands(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := apiLog(r, "commands")
	defer log.InfoContext(ctx, "done")
	c, err := b.manager.Commands(ctx)
	if err != nil {
		log.ErrorContext(ctx, "couldn't list commands", slog.Any("err", err))
		jsonerror(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if c == nil {
		c = []string{}
	}
	jsondata(ctx, log, w, c)
}

func (b *Bot) apiChannels(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := apiLog(r, "channels")
	defer log.InfoContext(ctx, "done")
	type channel struct {
		Name   string `json:"name"`
		Joined string `json:"joined"`
	}
	type network struct {
		Server   string    `json:"server"`
		Nick     string    `json:"nick"`
		Channels []channel `json:"channels"`
	}
	l := make([]network, 0, len(b.networks))
	for _, c := range b.networks {
		n := network{Server: c.cfg.Server, Nick: c.Nick(), Channels: []channel{}}
		snap := c.channels.Snapshot()
		for _, name := range c.channels.Keys() {
			t, ok := snap[name]
			if !ok {
				continue
			}
			n.Channels = append(n.Channels, channel{Name: name, Joined: t.Format(time.RFC3339)})
		}
		l = append(l, n)
	}
	jsondata(ctx, log, w, l)
}

func (b *Bot) apiAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := apiLog(r, "audit")
	defer log.InfoContext(ctx, "done")
	if b.src.audit == nil {
		jsonerror(w, http.StatusNotFound, "no audit log")
		return
	}
	n := 50
	if s := r.FormValue("n"); s != "" {
		var err error
		n, err = strconv.Atoi(s)
		if err != nil || n <= 0 {
			log.WarnContext(ctx, "bad request", slog.String("n", s), slog.Any("err", err))
			jsonerror(w, http.StatusBadRequest, "invalid count")
			return
		}
	}
	e, err := audit.Recent(ctx, b.src.audit, n)
	if err != nil {
		log.ErrorContext(ctx, "couldn't get audit log", slog.Any("err", err))
		jsonerror(w, http.StatusInternalServerError, err.Error())
		return
	}
	if e == nil {
		e = []audit.Entry{}
	}
	jsondata(ctx, log, w, e)
}

func (b *Bot) apiIgnored(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := apiLog(r, "ignored")
	defer log.InfoContext(ctx, "done")
	if b.src.ignore == nil {
		jsonerror(w, http.StatusNotFound, "no ignore list")
		return
	}
	l, err := b.src.ignore.All(ctx)
	if err != nil {
		log.ErrorContext(ctx, "couldn't list ignored users", slog.Any("err", err))
		jsonerror(w, http.StatusInternalServerError, err.Error())
		return
	}
	if l == nil {
		l = []string{}
	}
	jsondata(ctx, log, w, l)
}

func (b *Bot) apiIgnore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := apiLog(r, "ignore")
	defer log.InfoContext(ctx, "done")
	if b.src.ignore == nil {
		jsonerror(w, http.StatusNotFound, "no ignore list")
		return
	}
	nick := r.PathValue("nick")
	if err := b.src.ignore.Add(ctx, nick); err != nil {
		log.ErrorContext(ctx, "couldn't ignore user", slog.String("nick", nick), slog.Any("err", err))
		jsonerror(w, http.StatusInternalServerError, err.Error())
		return
	}
	log.InfoContext(ctx, "ignoring user", slog.String("nick", nick))
	w.WriteHeader(http.StatusNoContent)
}

func (b *Bot) apiUnignore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := apiLog(r, "unignore")
	defer log.InfoContext(ctx, "done")
	if b.src.ignore == nil {
		jsonerror(w, http.StatusNotFound, "no ignore list")
		return
	}
	nick := r.PathValue("nick")
	if err := b.src.ignore.Remove(ctx, nick); err != nil {
		log.ErrorContext(ctx, "couldn't unignore user", slog.String("nick", nick), slog.Any("err", err))
		jsonerror(w, http.StatusInternalServerError, err.Error())
		return
	}
	log.InfoContext(ctx, "unignoring user", slog.String("nick", nick))
	w.WriteHeader(http.StatusNoContent)
}
