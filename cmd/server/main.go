package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"d20rules.io/internal/logging"
	persistlog "d20rules.io/internal/persistence/log"
	"d20rules.io/internal/sim/blueprints"
	"d20rules.io/internal/sim/catalogs"
	"d20rules.io/internal/sim/rules"
	"d20rules.io/internal/sim/session"
	"d20rules.io/internal/sim/tuning"
	"d20rules.io/internal/transport/httpapi"
	"d20rules.io/internal/transport/observer"
	"d20rules.io/internal/transport/ws"
)

func main() {
	var (
		tuningPath    = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml (missing file: defaults)")
		addr          = flag.String("addr", "", "http listen address (overrides tuning)")
		blueprintsDir = flag.String("blueprints", "", "blueprint directory (overrides tuning)")
		catalogsDir   = flag.String("catalogs", "", "catalog override directory (overrides tuning)")
		dataDir       = flag.String("data", "", "runtime data directory (overrides tuning)")
		sessionID     = flag.String("session", "", "session id (default: random uuid)")
		disableDB     = flag.Bool("disable_db", false, "disable the sqlite event index")
	)
	flag.Parse()

	boot := logging.New("info", "text", os.Stdout)

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			boot.Fatalf("load tuning: %v", err)
		}
		boot.Infof("tuning not found (%s); using defaults", *tuningPath)
		tune = tuning.Defaults()
	}
	if err := tune.ApplyEnv(); err != nil {
		boot.Fatalf("tuning env: %v", err)
	}
	if *addr != "" {
		tune.Addr = *addr
	}
	if *blueprintsDir != "" {
		tune.BlueprintsDir = *blueprintsDir
	}
	if *catalogsDir != "" {
		tune.CatalogsDir = *catalogsDir
	}
	if *dataDir != "" {
		tune.DataDir = *dataDir
	}
	if *disableDB {
		tune.DisableDB = true
	}

	logger := logging.New(tune.LogLevel, tune.LogFormat, os.Stdout)
	log := logger.WithField("component", "server")

	cats, err := loadCatalogs(tune.CatalogsDir)
	if err != nil {
		log.Fatalf("load catalogs: %v", err)
	}

	reg, err := blueprints.NewRegistry(blueprints.WithLogger(logger.WithField("component", "blueprints")))
	if err != nil {
		log.Fatalf("blueprint registry: %v", err)
	}
	n, err := blueprints.LoadDir(reg, tune.BlueprintsDir)
	if err != nil {
		log.Fatalf("load blueprints: %v", err)
	}
	log.WithField("dir", tune.BlueprintsDir).Infof("loaded %d blueprints", n)

	opts := []rules.Option{
		rules.WithLogger(logger.WithField("component", "rules")),
		rules.WithMaxCreateDepth(tune.MaxCreateDepth),
	}
	if *sessionID != "" {
		opts = append(opts, rules.WithSessionID(*sessionID))
	}
	eng := rules.New(reg, cats, opts...)
	sess := session.New(eng, logger)

	ctx, cancel := signalContext()
	defer cancel()

	var journal *persistlog.EventJournal
	if !tune.DisableJournal {
		journal = persistlog.NewEventJournal(tune.DataDir, logger.WithField("component", "journal"))
		defer journal.Close()
	}

	// Optional read-model index; the engine never depends on it.
	idx, err := openRuntimeIndex(tune.DataDir, tune, logger)
	if err != nil {
		log.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertCatalogs(ctx, cats, tune); err != nil {
			log.Warnf("index backend: upsert catalogs: %v", err)
		}
	}

	obsSrv := observer.NewServer(observer.Config{
		Buffer:      tune.EventBuffer,
		AllowRemote: envBool("ADV_OBSERVER_ALLOW_REMOTE", defaultAllowRemote()),
	}, logger.WithField("component", "observer"))

	_ = sess.Do(func(e *rules.Engine) error {
		if journal != nil {
			e.Subscribe(journal.OnEvent)
		}
		if idx != nil {
			e.Subscribe(idx.OnEvent)
		}
		e.Subscribe(obsSrv.OnEvent)
		return nil
	})

	mux := http.NewServeMux()
	apiOpts := []httpapi.Option{httpapi.WithLogger(logger.WithField("component", "http"))}
	if idx != nil {
		apiOpts = append(apiOpts, httpapi.WithHistory(idx))
	}
	httpapi.NewServer(sess, apiOpts...).Register(mux)
	mux.HandleFunc("GET /v1/events", obsSrv.WSHandler())
	mux.HandleFunc("GET /v1/ws", ws.NewServer(sess, logger.WithField("component", "ws")).Handler())
	mux.HandleFunc("GET /metrics", func(rw http.ResponseWriter, r *http.Request) {
		writeMetrics(rw, sess, journal, idx, obsSrv)
	})

	if envBool("ADV_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		mux.HandleFunc("GET /admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			resp := struct {
				Session    string          `json:"session"`
				Entities   []*rules.Entity `json:"entities"`
				Blueprints int             `json:"blueprints"`
			}{Session: sess.ID()}
			// Marshal under the lock; entities are live.
			var body []byte
			err := sess.Do(func(e *rules.Engine) error {
				resp.Entities = e.Entities()
				resp.Blueprints = e.Blueprints().Len()
				var err error
				body, err = json.Marshal(resp)
				return err
			})
			if err != nil {
				http.Error(rw, err.Error(), http.StatusInternalServerError)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			_, _ = rw.Write(body)
		})
	} else {
		log.Info("admin endpoints disabled (ADV_ENABLE_ADMIN_HTTP=false)")
	}
	if envBool("ADV_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	srv := &http.Server{
		Addr:              tune.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	log.WithField("session", sess.ID()).Infof("listening on %s", tune.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("ListenAndServe: %v", err)
	}
}

func loadCatalogs(dir string) (*catalogs.Catalogs, error) {
	if strings.TrimSpace(dir) == "" {
		return catalogs.Default()
	}
	return catalogs.Load(dir)
}

func writeMetrics(rw http.ResponseWriter, sess *session.Session, journal *persistlog.EventJournal, idx runtimeIndex, obs *observer.Server) {
	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

	var entities int
	_ = sess.Do(func(e *rules.Engine) error {
		entities = e.Len()
		return nil
	})

	// Minimal Prometheus exposition format.
	fmt.Fprintf(rw, "# HELP d20rules_entities Live entities in the session.\n")
	fmt.Fprintf(rw, "# TYPE d20rules_entities gauge\n")
	fmt.Fprintf(rw, "d20rules_entities{session=%q} %d\n", sess.ID(), entities)

	fmt.Fprintf(rw, "# HELP d20rules_observer_clients Connected event feed clients.\n")
	fmt.Fprintf(rw, "# TYPE d20rules_observer_clients gauge\n")
	fmt.Fprintf(rw, "d20rules_observer_clients %d\n", obs.Clients())
	fmt.Fprintf(rw, "# HELP d20rules_observer_dropped_total Events dropped for slow feed clients.\n")
	fmt.Fprintf(rw, "# TYPE d20rules_observer_dropped_total counter\n")
	fmt.Fprintf(rw, "d20rules_observer_dropped_total %d\n", obs.Dropped())

	if journal != nil {
		written, failed := journal.Stats()
		fmt.Fprintf(rw, "# HELP d20rules_journal_records_total Event journal writes by outcome.\n")
		fmt.Fprintf(rw, "# TYPE d20rules_journal_records_total counter\n")
		fmt.Fprintf(rw, "d20rules_journal_records_total{outcome=%q} %d\n", "written", written)
		fmt.Fprintf(rw, "d20rules_journal_records_total{outcome=%q} %d\n", "failed", failed)
	}
	if idx != nil {
		s := idx.Stats()
		fmt.Fprintf(rw, "# HELP d20rules_index_events_total Event index rows by outcome.\n")
		fmt.Fprintf(rw, "# TYPE d20rules_index_events_total counter\n")
		fmt.Fprintf(rw, "d20rules_index_events_total{outcome=%q} %d\n", "written", s.Written)
		fmt.Fprintf(rw, "d20rules_index_events_total{outcome=%q} %d\n", "dropped", s.Dropped)
		fmt.Fprintf(rw, "d20rules_index_events_total{outcome=%q} %d\n", "failed", s.Failed)
		fmt.Fprintf(rw, "# HELP d20rules_index_queue_depth Pending index writes.\n")
		fmt.Fprintf(rw, "# TYPE d20rules_index_queue_depth gauge\n")
		fmt.Fprintf(rw, "d20rules_index_queue_depth %d\n", s.QueueDepth)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func defaultAllowRemote() bool { return !defaultEnableAdminHTTP() }

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
