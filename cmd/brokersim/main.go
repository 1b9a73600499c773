// brokersim is a local stand-in for the brokerage quote API. It serves the
// same /quote and /quote/ltp endpoints the http adapter talks to, with
// deterministic prices, so the collector can run end to end without
// credentials. Flags inject auth and throttle failures for drill runs.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net/http"
	"sync/atomic"

	"github.com/quantrail/optionsfeed/internal/quotes"
)

type quoteData struct {
	LastPrice    float64      `json:"last_price"`
	Volume       int64        `json:"volume,omitempty"`
	OpenInterest int64        `json:"oi,omitempty"`
	AveragePrice float64      `json:"average_price,omitempty"`
	OHLC         *quotes.OHLC `json:"ohlc,omitempty"`
}

type envelope struct {
	Status  string               `json:"status"`
	Data    map[string]quoteData `json:"data,omitempty"`
	Message string               `json:"message,omitempty"`
}

type server struct {
	fetcher  *quotes.MockFetcher
	rejectN  int64 // every Nth request gets a 429; 0 disables
	authFail bool
	seen     atomic.Int64
}

func (s *server) handle(ltpOnly bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n := s.seen.Add(1)
		if s.authFail {
			writeJSON(w, http.StatusForbidden, envelope{Status: "error", Message: "token expired"})
			return
		}
		if s.rejectN > 0 && n%s.rejectN == 0 {
			writeJSON(w, http.StatusTooManyRequests, envelope{Status: "error", Message: "too many requests"})
			return
		}

		keys := r.URL.Query()["i"]
		if len(keys) == 0 {
			writeJSON(w, http.StatusBadRequest, envelope{Status: "error", Message: "missing i param"})
			return
		}

		var (
			records map[string]quotes.Record
			err     error
		)
		if ltpOnly {
			records, err = s.fetcher.FetchLTP(r.Context(), keys)
		} else {
			records, err = s.fetcher.FetchQuotes(r.Context(), keys)
		}
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, envelope{Status: "error", Message: err.Error()})
			return
		}

		data := make(map[string]quoteData, len(records))
		for k, rec := range records {
			data[k] = quoteData{
				LastPrice:    rec.LastPrice,
				Volume:       rec.Volume,
				OpenInterest: rec.OpenInterest,
				AveragePrice: rec.AveragePrice,
				OHLC:         rec.OHLC,
			}
		}
		writeJSON(w, http.StatusOK, envelope{Status: "success", Data: data})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func main() {
	addr := flag.String("addr", ":8090", "listen address")
	rejectN := flag.Int64("reject-every", 0, "respond 429 to every Nth request (0 = never)")
	authFail := flag.Bool("auth-fail", false, "respond 403 to every request")
	flag.Parse()

	s := &server{
		fetcher:  quotes.NewMockFetcher(),
		rejectN:  *rejectN,
		authFail: *authFail,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/quote/ltp", s.handle(true))
	mux.HandleFunc("/quote", s.handle(false))

	log.Printf("brokersim listening on %s (reject-every=%d auth-fail=%v)", *addr, *rejectN, *authFail)
	srv := &http.Server{Addr: *addr, Handler: mux}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("brokersim: %v", err)
	}
}
