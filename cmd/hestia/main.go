// hestia command-line entry point
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/agilira/hestia"
	"github.com/agilira/hestia/cmd/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	manager := cli.NewManager().WithContext(ctx)

	// HESTIA_AUDIT_FILE enables auditing of changes made from the CLI.
	if path := hestia.GetEnvWithDefault("HESTIA_AUDIT_FILE", ""); path != "" {
		cfg := hestia.DefaultAuditConfig()
		cfg.OutputFile = path
		auditLogger, err := hestia.NewAuditLogger(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = auditLogger.Close() }()
		manager.WithAudit(auditLogger)
	}

	if err := manager.Run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
