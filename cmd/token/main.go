package main

import (
	"flag"
	"fmt"
	"os"

	"hookguard/internal/platform/auth"
	"hookguard/internal/platform/config"
	"hookguard/internal/platform/secrets"
)

// token prints a bearer token for the admin API, or with -webhook-secret
// a fresh random shared secret to provision on both sides.
func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	subject := flag.String("subject", "", "Operator identity recorded in audit logs")
	role := flag.String("role", auth.RoleAdmin, "Role claim")
	webhookSecret := flag.Bool("webhook-secret", false, "Print a new random webhook secret and exit")
	flag.Parse()

	if *webhookSecret {
		key, err := secrets.Generate(secrets.KeySize)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate secret: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(key)
		return
	}

	if *subject == "" {
		fmt.Fprintln(os.Stderr, "--subject is required")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	svc, err := auth.NewTokenService(cfg.JWT)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create token service: %v\n", err)
		os.Exit(1)
	}

	token, err := svc.GenerateAccessToken(*subject, *role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to sign token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
