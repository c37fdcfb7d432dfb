package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/pepper-guardian/guardian/controller"
	"github.com/pepper-guardian/guardian/controller/auth"
	"github.com/pepper-guardian/guardian/controller/modules/advisor"
	"github.com/pepper-guardian/guardian/controller/modules/monitor"
	"github.com/pepper-guardian/guardian/controller/storage"
	"github.com/pepper-guardian/guardian/controller/telemetry"
)

func main() {
	configPath := flag.String("config", "guardian.yml", "Path to the YAML settings file")
	addr := flag.String("addr", "", "Listen address (overrides settings)")
	dbPath := flag.String("db", "", "Bolt database path (overrides settings)")
	flag.Parse()

	settings, err := controller.LoadSettings(*configPath)
	if err != nil {
		log.Fatalln("Failed to load settings:", err)
	}
	if *addr != "" {
		settings.Address = *addr
	}
	if *dbPath != "" {
		settings.Database = *dbPath
	}

	store, err := storage.NewStore(settings.Database)
	if err != nil {
		log.Fatalln("Failed to open database:", err)
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := telemetry.NewMetrics(reg)
	if err != nil {
		log.Fatalln("Failed to register metrics:", err)
	}
	publisher, err := telemetry.NewPublisher(settings.MQTT)
	if err != nil {
		log.Println("WARNING: mqtt publishing disabled:", err)
		publisher = telemetry.NoopPublisher()
	}
	defer publisher.Close()

	bundle, bundleErr := advisor.LoadBundle(settings.ModelDir)
	if bundleErr != nil {
		log.Println("ERROR: inference disabled:", bundleErr)
	} else {
		log.Println("Loaded classifier bundle from", settings.ModelDir, "labels:", bundle.Labels())
	}

	host := controller.New(store, metrics, publisher)
	m, err := monitor.New(host, nil, bundle, bundleErr)
	if err != nil {
		log.Fatalln("Failed to create soil monitor:", err)
	}
	if err := m.Setup(monitor.Settings{
		Enable:   settings.Schedule != "",
		Schedule: settings.Schedule,
		Soil:     settings.Soil,
	}); err != nil {
		log.Fatalln("Failed to set up soil monitor:", err)
	}
	m.Start()
	defer m.Stop()

	a, err := auth.New(settings.Auth)
	if err != nil {
		log.Fatalln("Failed to set up authentication:", err)
	}

	r := mux.NewRouter()
	a.LoadAPI(r)
	m.LoadAPI(r, a.Protect)
	r.Handle("/metrics", metrics.Handler()).Methods("GET")
	r.HandleFunc("/api/errors", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(host.Errors())
	}).Methods("GET")

	srv := &http.Server{
		Addr:              settings.Address,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Println("Listening on", settings.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalln("HTTP server failed:", err)
		}
	}()
	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Println("WARNING: sd_notify:", err)
	} else if ok {
		log.Println("Notified systemd")
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("Shutting down")
	daemon.SdNotify(false, daemon.SdNotifyStopping)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Println("ERROR: shutdown:", err)
	}
}
