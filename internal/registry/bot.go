// Package registry provides the bot-identifier and email-validation
// caches consulted during intake (spec §2 component C, §3).
package registry

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/ignite/eventflow/internal/domain"
	"github.com/ignite/eventflow/internal/pkg/logger"
)

// BotRepository is the persistence contract the BotRegistry needs;
// satisfied by internal/store/postgres.Store.
type BotRepository interface {
	FindBotEntry(ctx context.Context, kind domain.IdentifierType, value string) (*domain.BotEntry, error)
	FindBotEntryByAssociated(ctx context.Context, kind domain.IdentifierType, value string) (*domain.BotEntry, error)
	UpsertBotEntry(ctx context.Context, kind domain.IdentifierType, value, detectionMethod string, honeypotFields, emails, phones, ips []string) error
}

// BotRegistry is the identifier-level bot detection index (spec §3
// BotEntry, §4.1 steps 1-2).
type BotRegistry struct {
	repo BotRepository
}

// NewBotRegistry constructs a BotRegistry backed by repo.
func NewBotRegistry(repo BotRepository) *BotRegistry {
	return &BotRegistry{repo: repo}
}

// Submission is the subset of an in-progress Event the registry needs
// to check and record against.
type Submission struct {
	Email string
	Phone string
	IP    string
}

// IsBot reports whether any of (email, phone, ip) is already known as a
// bot identifier, either as a BotEntry's primary key or within its
// associated sets (spec §4.1 step 2, "Known-bot"). No side effects.
func (r *BotRegistry) IsBot(ctx context.Context, sub Submission) (bool, error) {
	checks := []struct {
		kind  domain.IdentifierType
		value string
	}{
		{domain.IdentifierEmail, sub.Email},
		{domain.IdentifierPhone, sub.Phone},
		{domain.IdentifierIP, sub.IP},
	}
	for _, c := range checks {
		if c.value == "" {
			continue
		}
		if _, err := r.repo.FindBotEntry(ctx, c.kind, c.value); err == nil {
			return true, nil
		} else if !errors.Is(err, domain.ErrNotFound) {
			return false, err
		}
		if _, err := r.repo.FindBotEntryByAssociated(ctx, c.kind, c.value); err == nil {
			return true, nil
		} else if !errors.Is(err, domain.ErrNotFound) {
			return false, err
		}
	}
	return false, nil
}

// RecordHoneypot upserts a BotEntry for a honeypot-triggered submission,
// keyed primarily by email (else IP), merging the other identifiers as
// associated values (spec §4.1 step 1). Best-effort: failures are logged
// and swallowed, never propagated to the caller.
func (r *BotRegistry) RecordHoneypot(ctx context.Context, sub Submission, honeypotFields []string) {
	kind, key := primaryKey(sub)
	if key == "" {
		return
	}

	var emails, phones, ips []string
	if kind != domain.IdentifierEmail && sub.Email != "" {
		emails = append(emails, sub.Email)
	}
	if kind != domain.IdentifierPhone && sub.Phone != "" {
		phones = append(phones, sub.Phone)
	}
	if kind != domain.IdentifierIP && sub.IP != "" {
		ips = append(ips, sub.IP)
	}

	if err := r.repo.UpsertBotEntry(ctx, kind, key, "honeypot_triggered", honeypotFields, emails, phones, ips); err != nil {
		logger.Warn("registry: bot entry upsert failed", "error", err, "email", sub.Email)
	}
}

// primaryKey chooses email as the BotEntry's primary key, falling back
// to IP when no email was submitted (spec §4.1 step 1).
func primaryKey(sub Submission) (domain.IdentifierType, string) {
	if sub.Email != "" {
		return domain.IdentifierEmail, sub.Email
	}
	if sub.IP != "" {
		return domain.IdentifierIP, sub.IP
	}
	return "", ""
}

// Fingerprint returns the lowercased-trimmed-MD5 of an email, the
// stable identity key used across registries (glossary "Fingerprint").
func Fingerprint(email string) string {
	normalized := strings.ToLower(strings.TrimSpace(email))
	sum := md5.Sum([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
