package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// simulate hammers one free slot with concurrent booking requests and checks
// the exactly-one-winner guarantee from the outside, through the HTTP API.
func main() {
	var (
		baseURL = flag.String("base-url", "http://127.0.0.1:8080", "api-server base URL")
		slotID  = flag.String("slot", "", "free slot UUID to contend for (default: first free slot)")
		workers = flag.Int("workers", 25, "concurrent booking attempts")
	)
	flag.Parse()

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "simulate").Logger()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	client := &http.Client{Timeout: 10 * time.Second}

	target := *slotID
	if target == "" {
		var err error
		target, err = firstFreeSlot(ctx, client, *baseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("find free slot")
		}
	}
	logger.Info().Str("slot_id", target).Int("workers", *workers).Msg("starting contention run")

	gofakeit.Seed(time.Now().UnixNano())

	type outcome struct {
		status int
		code   string
	}
	results := make([]outcome, *workers)

	var wg sync.WaitGroup
	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			patientID := uuid.New()
			status, code, err := book(ctx, client, *baseURL, target, patientID, gofakeit.Sentence(5))
			if err != nil {
				results[n] = outcome{status: -1, code: err.Error()}
				return
			}
			results[n] = outcome{status: status, code: code}
		}(i)
	}
	wg.Wait()

	var won, conflicted, failed int
	for _, res := range results {
		switch {
		case res.status == http.StatusCreated:
			won++
		case res.status == http.StatusConflict:
			conflicted++
		default:
			failed++
			logger.Warn().Int("status", res.status).Str("code", res.code).Msg("unexpected outcome")
		}
	}

	logger.Info().
		Int("won", won).
		Int("conflicted", conflicted).
		Int("failed", failed).
		Msg("contention run complete")

	if won != 1 {
		logger.Fatal().Int("won", won).Msg("expected exactly one winner")
	}
	logger.Info().Msg("exactly-one-winner holds")
}

func firstFreeSlot(ctx context.Context, client *http.Client, baseURL string) (string, error) {
	from := time.Now().UTC()
	to := from.Add(14 * 24 * time.Hour)
	url := fmt.Sprintf("%s/slots?from=%s&to=%s", baseURL, from.Format(time.RFC3339), to.Format(time.RFC3339))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("list slots: status %d: %s", resp.StatusCode, body)
	}

	var slots []struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&slots); err != nil {
		return "", err
	}
	if len(slots) == 0 {
		return "", fmt.Errorf("no free slots, run the seed first")
	}
	return slots[0].ID, nil
}

func book(ctx context.Context, client *http.Client, baseURL, slotID string, patientID uuid.UUID, reason string) (int, string, error) {
	payload, err := json.Marshal(map[string]string{
		"slot_id":    slotID,
		"patient_id": patientID.String(),
		"reason":     reason,
	})
	if err != nil {
		return 0, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/bookings", bytes.NewReader(payload))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Principal-ID", patientID.String())
	req.Header.Set("X-Principal-Role", "patient")
	req.Header.Set("Idempotency-Key", uuid.NewString())

	resp, err := client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp.StatusCode, body.Error, nil
}
