// Copyright 2025 The Babel Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command babel resolves package requirements against configured
// ecosystem snapshots and prints the chosen versions.
//
//	babel [-config babel.toml] [-timeout 30s] [-v] ecosystem:name[:constraint] ...
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/RyanGibb/babel"
)

func main() {
	var (
		configPath = flag.String("config", "babel.toml", "path to the babel configuration file")
		timeout    = flag.Duration("timeout", 30*time.Second, "abandon solving after this long")
		verbose    = flag.Bool("v", false, "trace propagation and decisions")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: babel [flags] ecosystem:name[:constraint] ...\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	log := logrus.New()
	log.SetOutput(os.Stderr)
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	req, err := parseArgs(flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	if err := run(*configPath, *timeout, log, req); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func parseArgs(args []string) (babel.Request, error) {
	var req babel.Request
	for _, arg := range args {
		parts := strings.SplitN(arg, ":", 3)
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			return babel.Request{}, fmt.Errorf("argument %q is not ecosystem:name[:constraint]", arg)
		}
		rq := babel.Requirement{Ecosystem: parts[0], Name: parts[1]}
		if len(parts) == 3 {
			rq.Constraint = parts[2]
		}
		req.Requirements = append(req.Requirements, rq)
	}
	return req, nil
}

func run(configPath string, timeout time.Duration, log *logrus.Logger, req babel.Request) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cfg, err := babel.LoadConfig(configPath)
	if err != nil {
		return err
	}
	resolver, err := babel.NewResolverFromConfig(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer resolver.Close()

	report, err := resolver.Resolve(ctx, req)
	if err != nil {
		return err
	}
	if !report.OK() {
		fmt.Fprintln(os.Stderr, report.Explanation)
		return fmt.Errorf("no version assignment satisfies the requirements")
	}
	for _, pin := range report.Pins {
		fmt.Printf("%s:%s %s\n", pin.Ecosystem, pin.Name, pin.Version)
	}
	return nil
}
