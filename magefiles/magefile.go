//go:build mage

// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

// Package main provides build targets for the goldrush project using Mage.
//
// Usage:
//
//	mage build          Compile the prospector binary to bin/
//	mage test:all       Run all tests
//	mage test:unit      Run tests without the end-to-end packages
//	mage test:race      Run all tests with the race detector
//	mage test:cover     Write a coverage profile to bin/cover.out
//	mage lint           Run golangci-lint
//	mage vet            Run go vet
//	mage clean          Remove build artifacts
//	mage install        Install prospector to GOPATH/bin
//	mage stats          Print Go LOC per package and documentation word counts
package main
