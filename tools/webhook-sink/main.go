// webhook-sink is a local receiver for the sms/chat webhook senders. It
// accepts any POST, logs the payload, and answers 200, so reminder delivery
// can be exercised end to end without real provider accounts.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

func main() {
	var (
		addr  = flag.String("addr", getenv("SINK_ADDR", ":9900"), "listen address")
		token = flag.String("token", getenv("SINK_TOKEN", ""), "expected bearer token (empty accepts all)")
		fail  = flag.String("fail-substring", getenv("SINK_FAIL_SUBSTRING", ""), "return 500 when the body contains this substring")
	)
	flag.Parse()

	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if *token != "" && r.Header.Get("Authorization") != "Bearer "+*token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			http.Error(w, "read error", http.StatusBadRequest)
			return
		}

		entry := map[string]any{
			"received_at": time.Now().UTC().Format(time.RFC3339),
			"path":        r.URL.Path,
		}
		var payload map[string]any
		if err := json.Unmarshal(body, &payload); err == nil {
			entry["payload"] = payload
		} else {
			entry["raw"] = string(body)
		}
		_ = json.NewEncoder(os.Stdout).Encode(entry)

		if *fail != "" && strings.Contains(string(body), *fail) {
			http.Error(w, "simulated provider failure", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	fmt.Printf("webhook sink listening on %s\n", *addr)
	srv := &http.Server{
		Addr:              *addr,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
