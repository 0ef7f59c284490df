// cmd/loadtest drives concurrent reserve calls against a single SKU to
// exercise the no-oversell invariant under contention — the same
// semaphore-bounded concurrent-client shape as the teacher's megaload
// tool, pointed at the reservation endpoints instead of the sale
// checkout endpoint.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

type metrics struct {
	requestsSent      int64
	requestsCompleted int64

	created201      int64 // reserved successfully
	conflict409     int64 // insufficient stock or sku not initialized
	notFound404     int64 // route not found
	tooMany429      int64 // rate limited
	otherClientErr  int64
	serverErrors5xx int64
	networkErrors   int64
}

func (m *metrics) recordResponse(statusCode int) {
	atomic.AddInt64(&m.requestsCompleted, 1)

	switch statusCode {
	case 201:
		atomic.AddInt64(&m.created201, 1)
	case 404:
		atomic.AddInt64(&m.notFound404, 1)
	case 409:
		atomic.AddInt64(&m.conflict409, 1)
	case 429:
		atomic.AddInt64(&m.tooMany429, 1)
	default:
		if statusCode >= 500 {
			atomic.AddInt64(&m.serverErrors5xx, 1)
		} else if statusCode >= 400 {
			atomic.AddInt64(&m.otherClientErr, 1)
		}
	}
}

func (m *metrics) recordNetworkError() {
	atomic.AddInt64(&m.requestsCompleted, 1)
	atomic.AddInt64(&m.networkErrors, 1)
}

func (m *metrics) printProgress(totalRequests int) {
	sent := atomic.LoadInt64(&m.requestsSent)
	completed := atomic.LoadInt64(&m.requestsCompleted)
	created := atomic.LoadInt64(&m.created201)
	inFlight := sent - completed

	fmt.Printf("progress: %d/%d sent | completed: %d | in-flight: %d | reserved: %d\n",
		sent, totalRequests, completed, inFlight, created)
}

func (m *metrics) printFinal(duration time.Duration, initialStock int64) {
	sent := atomic.LoadInt64(&m.requestsSent)
	completed := atomic.LoadInt64(&m.requestsCompleted)
	created := atomic.LoadInt64(&m.created201)

	fmt.Printf("\n=== FINAL RESULTS ===\n")
	fmt.Printf("duration: %v\n", duration)
	fmt.Printf("requests sent: %d\n", sent)
	fmt.Printf("requests completed: %d (%.2f%%)\n", completed, float64(completed)/float64(sent)*100)
	fmt.Printf("requests lost: %d\n", sent-completed)

	fmt.Printf("\n--- outcomes ---\n")
	fmt.Printf("201 reserved: %d\n", created)
	fmt.Printf("409 insufficient stock or not initialized: %d\n", atomic.LoadInt64(&m.conflict409))
	fmt.Printf("404 not found: %d\n", atomic.LoadInt64(&m.notFound404))
	fmt.Printf("429 rate limited: %d\n", atomic.LoadInt64(&m.tooMany429))
	fmt.Printf("other 4xx: %d\n", atomic.LoadInt64(&m.otherClientErr))
	fmt.Printf("5xx server errors: %d\n", atomic.LoadInt64(&m.serverErrors5xx))
	fmt.Printf("network errors: %d\n", atomic.LoadInt64(&m.networkErrors))

	fmt.Printf("\n--- no-oversell check ---\n")
	fmt.Printf("initial stock: %d, successful reserves: %d\n", initialStock, created)
	if created > initialStock {
		fmt.Printf("OVERSOLD: %d more reservations succeeded than available stock\n", created-initialStock)
	} else {
		fmt.Printf("stock invariant held\n")
	}
}

func main() {
	var (
		baseURL       = flag.String("url", "http://localhost:8080", "base URL of the reservation-core server")
		sku           = flag.String("sku", "SKU-DEFAULT", "SKU to hammer with concurrent reserve calls")
		initialStock  = flag.Int64("initial-stock", 1000, "stock to initialize the sku with before the run")
		totalRequests = flag.Int("requests", 20000, "total reserve requests to send")
		concurrency   = flag.Int("concurrency", 500, "maximum concurrent in-flight requests")
		token         = flag.String("token", "", "bearer token to authenticate requests (required)")
	)
	flag.Parse()

	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        *concurrency * 2,
			MaxIdleConnsPerHost: *concurrency,
			MaxConnsPerHost:     *concurrency,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	if err := initializeSKU(client, *baseURL, *token, *sku, *initialStock); err != nil {
		fmt.Printf("failed to initialize sku: %v\n", err)
		return
	}

	var m metrics
	fmt.Printf("starting load test: %d requests, %d concurrent, sku=%s, initial stock=%d\n",
		*totalRequests, *concurrency, *sku, *initialStock)
	start := time.Now()

	var wg sync.WaitGroup
	sem := make(chan struct{}, *concurrency)

	progressDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.printProgress(*totalRequests)
			case <-progressDone:
				return
			}
		}
	}()

	for i := 0; i < *totalRequests; i++ {
		wg.Add(1)
		sem <- struct{}{}
		atomic.AddInt64(&m.requestsSent, 1)

		go func(requestNum int) {
			defer wg.Done()
			defer func() { <-sem }()

			body, _ := json.Marshal(map[string]interface{}{"sku": *sku, "quantity": 1})
			req, err := http.NewRequest(http.MethodPost, *baseURL+"/v1/inventory/reserve", bytes.NewReader(body))
			if err != nil {
				m.recordNetworkError()
				return
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+*token)
			req.Header.Set("Idempotency-Key", fmt.Sprintf("loadtest-%d", requestNum))

			resp, err := client.Do(req)
			if err != nil {
				m.recordNetworkError()
				return
			}
			defer resp.Body.Close()

			var discard map[string]interface{}
			json.NewDecoder(resp.Body).Decode(&discard)

			m.recordResponse(resp.StatusCode)
		}(i)
	}

	wg.Wait()
	close(progressDone)

	m.printFinal(time.Since(start), *initialStock)
}

func initializeSKU(client *http.Client, baseURL, token, sku string, quantity int64) error {
	url := fmt.Sprintf("%s/v1/inventory/%s/initialize?quantity=%d", baseURL, sku, quantity)
	req, err := http.NewRequest(http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("initialize returned status %d", resp.StatusCode)
	}
	return nil
}
