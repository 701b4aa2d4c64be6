// Package handlers implements the application routes.
package handlers

import (
	"bytes"
	"net/http"

	"github.com/go-kit/kit/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/lkendrickd/httpapi/errors"
	"github.com/lkendrickd/httpapi/internal/config"
	"github.com/lkendrickd/httpapi/internal/pipeline"
)

// Metrics renders everything g gathers in the exposition format negotiated
// from the Accept header, plain text when nothing better is asked for.
func Metrics(g prometheus.Gatherer) pipeline.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		mfs, err := g.Gather()
		if err != nil {
			return errors.Errorf("gather metrics: %w", err)
		}
		format := expfmt.Negotiate(r.Header)
		var buf bytes.Buffer
		enc := expfmt.NewEncoder(&buf, format)
		for _, mf := range mfs {
			if err := enc.Encode(mf); err != nil {
				return errors.Errorf("encode %s: %w", mf.GetName(), err)
			}
		}
		if closer, ok := enc.(expfmt.Closer); ok {
			if err := closer.Close(); err != nil {
				return errors.Errorf("encode metrics: %w", err)
			}
		}
		w.Header().Set("Content-Type", string(format))
		w.WriteHeader(http.StatusOK)
		_, err = w.Write(buf.Bytes())
		return err
	}
}

type healthBody struct {
	Status string `json:"status"`
}

// Health is the liveness payload. It never consults anything beyond the
// process being able to answer.
func Health() pipeline.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) error {
		return pipeline.WriteJSON(w, http.StatusOK, healthBody{Status: "ok"})
	}
}

type indexBody struct {
	Message   string           `json:"message"`
	BuildInfo config.BuildInfo `json:"build_info"`
}

// Index reports the service build provenance. Each call is observed by
// processing, in seconds.
func Index(bi config.BuildInfo, processing metrics.Histogram) pipeline.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) error {
		defer metrics.NewTimer(processing).ObserveDuration()
		return pipeline.WriteJSON(w, http.StatusOK, indexBody{Message: "online", BuildInfo: bi})
	}
}
