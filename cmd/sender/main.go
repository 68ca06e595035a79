package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"hookguard/internal/engine/webhooks"
	"hookguard/internal/pkg/logger"
	"hookguard/internal/platform/config"
	"hookguard/internal/platform/secrets"
)

// sender signs a JSON payload and either prints the wire message or
// POSTs it to a receiver.
func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	payloadPath := flag.String("payload", "-", "JSON payload file, - for stdin")
	target := flag.String("url", "", "Receiver URL; when empty the signed message is printed")
	event := flag.String("event", "", "Event name header (defaults to the payload's event_name)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.Logging)

	ctx := context.Background()
	secret, err := secrets.Load(ctx, secrets.ChainProvider{
		secrets.StaticProvider{Value: cfg.Webhooks.Secret},
		secrets.FileProvider{Path: cfg.Webhooks.SecretFile},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("webhook secret unavailable")
	}
	defer secret.Destroy()

	payload, err := readPayload(*payloadPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read payload")
	}

	signer, err := webhooks.NewSigner(secret)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create signer")
	}
	msg, err := signer.BuildMessage(payload)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to sign payload")
	}

	if *target == "" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(struct {
			Header    string          `json:"header"`
			Signature string          `json:"signature"`
			Body      json.RawMessage `json:"body"`
		}{
			Header:    webhooks.HeadersFromConfig(cfg.Webhooks).Signature,
			Signature: msg.Signature,
			Body:      msg.Body,
		})
		return
	}

	name := *event
	if name == "" {
		name, _ = payload["event_name"].(string)
	}

	d := webhooks.NewDeliverer(nil, webhooks.HeadersFromConfig(cfg.Webhooks), webhooks.RetryPolicyFromConfig(cfg.Webhooks))
	attempt := d.Deliver(ctx, webhooks.Target{
		URL:        *target,
		EventName:  name,
		DeliveryID: "dlv_" + uuid.New().String(),
	}, msg)

	if !attempt.OK() {
		log.Fatal().Err(attempt.Err).Int("attempts", attempt.Attempts).Int("status_code", attempt.StatusCode).Msg("delivery failed")
	}
	log.Info().Int("attempts", attempt.Attempts).Int("status_code", attempt.StatusCode).Msg("delivered")
}

func readPayload(path string) (webhooks.Payload, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	dec := json.NewDecoder(r)
	dec.UseNumber()
	var payload webhooks.Payload
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("payload must be a JSON object: %w", err)
	}
	return payload, nil
}
