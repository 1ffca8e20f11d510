// Copyright (c) 2026 NTT DATA Deutschland SE. All rights reserved.
// SPDX-License-Identifier: MIT

package model

import (
	"fmt"
	"strconv"
	"strings"
)

// FindingCategory classifies an audit finding.
type FindingCategory string

const (
	FindingAG FindingCategory = "AG" // geringfügige Abweichung
	FindingAS FindingCategory = "AS" // schwerwiegende Abweichung
	FindingE  FindingCategory = "E"  // Empfehlung
	FindingOK FindingCategory = "OK" // nichts zu berichten
)

// Finding is one audit observation. IDs are assigned sequentially per
// category by the controller (AG-01, AG-02, ...); findings carried over
// from a scanned previous report keep their original IDs.
type Finding struct {
	ID             string          `json:"id,omitempty"`
	Category       FindingCategory `json:"category"`
	Description    string          `json:"description"`
	SourceChapter  string          `json:"source_chapter,omitempty"`
	Status         string          `json:"status,omitempty"`
	Behebungsfrist string          `json:"behebungsfrist,omitempty"`
}

// FormatFindingID renders the sequential ID for a category, zero-padded
// to two digits.
func FormatFindingID(category FindingCategory, n int) string {
	return fmt.Sprintf("%s-%02d", category, n)
}

// ParseFindingID splits an ID like "AG-12" into its category and
// number. Returns ok=false for malformed IDs.
func ParseFindingID(id string) (category FindingCategory, n int, ok bool) {
	prefix, num, found := strings.Cut(id, "-")
	if !found || prefix == "" {
		return "", 0, false
	}
	v, err := strconv.Atoi(num)
	if err != nil || v <= 0 {
		return "", 0, false
	}
	return FindingCategory(prefix), v, true
}

// NormalizeDescription canonicalizes a finding description for
// duplicate detection: lowercased with collapsed whitespace.
func NormalizeDescription(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
