package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tbxark/stepform"
	"github.com/tbxark/stepform/config"
	"github.com/tbxark/stepform/dialog"
	"github.com/tbxark/stepform/forms"
	"github.com/tbxark/stepform/httpapi"
	"github.com/tbxark/stepform/logger"
	"github.com/tbxark/stepform/metrics"
	"github.com/tbxark/stepform/notify"
	"github.com/tbxark/stepform/submit"
)

func main() {
	path := flag.String("config", "config.yaml", "path to config file")
	addr := flag.String("addr", "", "listen address, overrides the config file")
	flag.Parse()

	conf, err := config.Load(*path)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *addr != "" {
		conf.Addr = *addr
	}
	if err := run(conf); err != nil {
		log.Fatalf("stepformd: %v", err)
	}
}

func run(conf *config.Config) error {
	mode, err := logger.ParseMode(conf.LogMode)
	if err != nil {
		return err
	}
	lg := logger.New(mode)
	slog.SetDefault(lg)

	var m *metrics.Metrics
	if conf.Metrics {
		m = metrics.New()
	}
	defs, err := definitions(conf, m)
	if err != nil {
		return err
	}
	api := httpapi.New(defs,
		httpapi.WithLogger(lg),
		httpapi.WithLanguage(conf.Tag()),
		httpapi.WithNotifier(notify.NewLogNotifier(lg)),
		httpapi.WithMetrics(m),
	)
	srv := &http.Server{
		Addr:         conf.Addr,
		Handler:      api.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: conf.Backend.Timeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	errCh := make(chan error, 1)
	go func() {
		lg.Info("stepformd listening", "addr", conf.Addr, "forms", len(defs))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	lg.Info("stepformd shutting down")
	return srv.Shutdown(shutdownCtx)
}

// definitions wires every configured form to the backend endpoints. m may be
// nil.
func definitions(conf *config.Config, m *metrics.Metrics) ([]stepform.Definition, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 16
	client := &http.Client{Timeout: conf.Backend.Timeout, Transport: transport}
	defs := make([]stepform.Definition, 0, len(conf.Forms))
	for _, fc := range conf.Forms {
		fetchOpts := []submit.FetcherOption{
			submit.WithRetry(conf.Backend.FetchRetries, conf.Backend.RetryWaitMin, conf.Backend.RetryWaitMax),
			submit.WithFetchTimeout(conf.Backend.Timeout),
			submit.WithTransport(transport),
		}
		submitOpts := []submit.HTTPOption{
			submit.WithHTTPClient(client),
			submit.WithFields(forms.FieldNames(fc.Name)...),
		}
		if fc.MergePatch {
			submitOpts = append(submitOpts, submit.WithMergePatch())
		}
		for k, v := range conf.Backend.Headers {
			fetchOpts = append(fetchOpts, submit.WithFetchHeader(k, v))
			submitOpts = append(submitOpts, submit.WithHeader(k, v))
		}
		var fetch dialog.Fetcher
		if fc.Fetch != "" {
			fetch = submit.NewHTTPFetcher(conf.URL(fc.Fetch), fetchOpts...)
		}
		adapters := make([]submit.Adapter, 0, len(fc.Submit))
		for _, p := range fc.Submit {
			adapter := submit.NewHTTPAdapter(fc.Method, conf.URL(p), forms.Codes(fc.Name), submitOpts...)
			adapters = append(adapters, m.Instrument(fc.Name, adapter))
		}
		def, err := forms.Build(fc.Name, fetch, adapters...)
		if err != nil {
			return nil, fmt.Errorf("form %s: %w", fc.Name, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}
