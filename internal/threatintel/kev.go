// Package threatintel enriches vulnerabilities with the CISA Known Exploited
// Vulnerabilities catalog.
package threatintel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	// CacheTTL is how long a fetched catalog stays fresh.
	CacheTTL = 6 * time.Hour
	// FailureTTL is how long an empty set is kept after a failed fetch.
	FailureTTL = 15 * time.Minute

	fetchTimeout = 10 * time.Second
	// SourceName labels intel coming from the catalog.
	SourceName = "CISA KEV"
)

// Options configures an Enricher.
type Options struct {
	URL     string
	Store   Store
	Offline bool
	Client  *http.Client
	Logger  *slog.Logger
	Now     func() time.Time
}

// Enricher loads the KEV set through a memory cache, a persisted snapshot
// and finally the HTTP feed.
type Enricher struct {
	url     string
	store   Store
	offline bool
	client  *http.Client
	log     *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	cached  map[string]struct{}
	expires time.Time
}

func NewEnricher(opts Options) *Enricher {
	e := &Enricher{
		url:     opts.URL,
		store:   opts.Store,
		offline: opts.Offline,
		client:  opts.Client,
		log:     opts.Logger,
		now:     opts.Now,
	}
	if e.client == nil {
		e.client = &http.Client{Timeout: fetchTimeout}
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// KEV returns the set of upper-cased CVE IDs in the catalog. A feed error
// yields an empty set that is cached for FailureTTL; the error is returned
// alongside it for reporting and is not fatal.
func (e *Enricher) KEV(ctx context.Context, forceRefresh bool) (map[string]struct{}, error) {
	return e.load(ctx, forceRefresh, e.offline)
}

// Offline reports whether the enricher was built to never touch the feed.
func (e *Enricher) Offline() bool { return e.offline }

func (e *Enricher) load(ctx context.Context, forceRefresh, offline bool) (map[string]struct{}, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if offline {
		return e.offlineSet(ctx), nil
	}

	now := e.now()
	if !forceRefresh && e.cached != nil && now.Before(e.expires) {
		return e.cached, nil
	}

	if !forceRefresh && e.store != nil {
		snap, err := e.store.Load(ctx)
		switch {
		case err == nil && now.Before(snap.ExpiresAt):
			e.remember(snap.Set(), snap.ExpiresAt)
			return e.cached, nil
		case err != nil && !errors.Is(err, ErrNoSnapshot):
			e.log.Warn("threatintel: failed to load KEV cache", "error", err)
		}
	}

	set, err := e.fetch(ctx)
	if err != nil {
		e.log.Warn("threatintel: failed to load CISA KEV feed", "error", err)
		e.persist(ctx, map[string]struct{}{}, now.Add(FailureTTL))
		return e.cached, fmt.Errorf("fetching CISA KEV feed: %w", err)
	}
	e.persist(ctx, set, now.Add(CacheTTL))
	e.log.Debug("threatintel: KEV catalog loaded", "cves", len(set))
	return e.cached, nil
}

// Enrich sets the "threatintel" entry of every vulnerability, merging into
// any intel already present. Vulnerabilities are annotated even when the
// feed could not be fetched; that error is returned afterwards. An offline
// call only reads the memory cache or the persisted snapshot.
func (e *Enricher) Enrich(ctx context.Context, vulns []map[string]any, offline bool) error {
	if len(vulns) == 0 {
		return nil
	}
	set, err := e.load(ctx, false, e.offline || offline)
	for _, v := range vulns {
		Annotate(v, set)
	}
	return err
}

// Annotate merges KEV intel for vuln into vuln["threatintel"] and returns it.
func Annotate(vuln map[string]any, kev map[string]struct{}) map[string]any {
	cve := CVEOf(vuln)
	_, listed := kev[cve]
	listed = listed && cve != ""

	intel, _ := vuln["threatintel"].(map[string]any)
	if intel == nil {
		intel = map[string]any{}
	}
	intel["kev_listed"] = listed
	if listed {
		intel["chatter_score"] = 0.9
		intel["sources"] = []any{SourceName}
	} else {
		intel["chatter_score"] = 0.1
		intel["sources"] = []any{}
	}
	vuln["threatintel"] = intel
	return intel
}

// CVEOf returns the upper-cased identifier of a Trivy vulnerability payload.
func CVEOf(vuln map[string]any) string {
	for _, k := range []string{"VulnerabilityID", "vulnerability_id", "CVE", "cve", "id"} {
		if v, ok := vuln[k]; ok && v != nil {
			if s := fmt.Sprint(v); s != "" {
				return strings.ToUpper(s)
			}
		}
	}
	return ""
}

func (e *Enricher) offlineSet(ctx context.Context) map[string]struct{} {
	if e.cached != nil {
		return e.cached
	}
	if e.store != nil {
		snap, err := e.store.Load(ctx)
		if err == nil {
			e.cached, e.expires = snap.Set(), snap.ExpiresAt
			return e.cached
		}
		if !errors.Is(err, ErrNoSnapshot) {
			e.log.Warn("threatintel: failed to load KEV cache", "error", err)
		}
	}
	e.log.Info("threatintel: offline without KEV snapshot, skipping KEV enrichment")
	return map[string]struct{}{}
}

func (e *Enricher) remember(set map[string]struct{}, expires time.Time) {
	e.cached = set
	e.expires = expires
}

func (e *Enricher) persist(ctx context.Context, set map[string]struct{}, expires time.Time) {
	e.remember(set, expires)
	if e.store == nil {
		return
	}
	if err := e.store.Save(ctx, NewSnapshot(set, expires)); err != nil {
		e.log.Debug("threatintel: unable to persist KEV cache", "error", err)
	}
}

type feed struct {
	Vulnerabilities []struct {
		CveID    string `json:"cveID"`
		LegacyID string `json:"cveId"`
	} `json:"vulnerabilities"`
}

func (e *Enricher) fetch(ctx context.Context) (map[string]struct{}, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	var f feed
	if err := json.NewDecoder(resp.Body).Decode(&f); err != nil {
		return nil, fmt.Errorf("decoding feed: %w", err)
	}
	set := make(map[string]struct{}, len(f.Vulnerabilities))
	for _, v := range f.Vulnerabilities {
		id := v.CveID
		if id == "" {
			id = v.LegacyID
		}
		if id != "" {
			set[strings.ToUpper(id)] = struct{}{}
		}
	}
	return set, nil
}
