package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	RefreshJobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "refresh_jobs_total",
		Help: "Количество задач обновления метрик по итоговому статусу",
	}, []string{"status"})

	RefreshJobDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "refresh_job_duration_seconds",
		Help:    "Длительность выполнения задачи обновления",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800, 3600},
	})

	RefreshAccountsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "refresh_accounts_processed_total",
		Help: "Обработанные аккаунты в задачах обновления",
	}, []string{"platform", "outcome"})

	SnapshotWritesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "snapshot_writes_total",
		Help: "Записи снапшотов по результату дедупликации",
	}, []string{"outcome"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 30, 45, 60, 90, 120},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		RefreshJobsTotal,
		RefreshJobDuration,
		RefreshAccountsProcessed,
		SnapshotWritesTotal,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveSnapshotWrite записывает результат записи снапшота.
func ObserveSnapshotWrite(created bool) {
	outcome := "noop"
	if created {
		outcome = "written"
	}
	SnapshotWritesTotal.WithLabelValues(outcome).Inc()
}

// ObserveAccountProcessed записывает результат обработки одного аккаунта.
func ObserveAccountProcessed(platform string, ok bool) {
	outcome := "failed"
	if ok {
		outcome = "updated"
	}
	RefreshAccountsProcessed.WithLabelValues(platform, outcome).Inc()
}
