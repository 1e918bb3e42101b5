// Package identity resolves DIDs to their documents, PLC audit logs and
// hosting provider.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/blackmichael/skystats/internal/domain"
)

const (
	defaultPLC = "https://plc.directory"

	pdsServiceType = "AtprotoPersonalDataServer"
	pdsServiceID   = "#atproto_pds"
	bskyHostSuffix = ".bsky.network"

	// UnknownPDS is reported when a document lists no storage host.
	UnknownPDS = "unknown"
)

// Resolver resolves did:plc identifiers against a PLC directory and did:web
// identifiers against their own domain.
type Resolver struct {
	plcURL     string
	webScheme  string
	httpClient *http.Client
}

// NewResolver creates a Resolver. If plcURL is empty, it defaults to
// https://plc.directory.
func NewResolver(plcURL string) *Resolver {
	if plcURL == "" {
		plcURL = defaultPLC
	}
	return &Resolver{
		plcURL:    strings.TrimRight(plcURL, "/"),
		webScheme: "https",
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Resolve fetches the DID document of did, its audit log for did:plc, and
// classifies its storage host.
func (r *Resolver) Resolve(ctx context.Context, did string) (*domain.IdentityInfo, error) {
	method, id := splitDID(did)

	info := &domain.IdentityInfo{
		DID:    did,
		Method: method,
		Audit:  []domain.AuditEntry{},
	}

	switch method {
	case "plc":
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			doc, err := r.fetchDocument(gctx, r.plcURL+"/"+did)
			if err != nil {
				return err
			}
			info.Document = doc
			return nil
		})
		g.Go(func() error {
			audit, err := r.fetchAudit(gctx, r.plcURL+"/"+did+"/log/audit")
			if err != nil {
				return err
			}
			info.Audit = audit
			return nil
		})
		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("resolve %s: %w", did, err)
		}

	case "web":
		domainName, err := url.PathUnescape(id)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: decode domain: %w", did, err)
		}
		info.DIDDomain = domainName

		doc, err := r.fetchDocument(ctx, r.webScheme+"://"+domainName+"/.well-known/did.json")
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", did, err)
		}
		info.Document = doc

	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedDIDMethod, method)
	}

	info.PDS, info.IsBskyHost = classifyPDS(info.Document)
	return info, nil
}

// splitDID returns the method and method-specific identifier of did.
func splitDID(did string) (method, id string) {
	parts := strings.SplitN(did, ":", 3)
	if len(parts) != 3 || parts[0] != "did" {
		return "", ""
	}
	return parts[1], parts[2]
}

// classifyPDS picks the last storage host service of doc. Hosts on the
// BlueSky network are reduced to their first label.
func classifyPDS(doc *domain.DIDDocument) (string, bool) {
	if doc == nil {
		return UnknownPDS, false
	}

	endpoint := ""
	for _, svc := range doc.Service {
		if svc.Type == pdsServiceType || svc.ID == pdsServiceID {
			endpoint = svc.ServiceEndpoint
		}
	}
	if endpoint == "" {
		return UnknownPDS, false
	}

	u, err := url.Parse(endpoint)
	if err != nil || u.Hostname() == "" {
		return endpoint, false
	}
	host := u.Hostname()
	if strings.HasSuffix(host, bskyHostSuffix) {
		label, _, _ := strings.Cut(host, ".")
		return label, true
	}
	return endpoint, false
}

func (r *Resolver) fetchDocument(ctx context.Context, u string) (*domain.DIDDocument, error) {
	var doc domain.DIDDocument
	if err := r.get(ctx, u, &doc); err != nil {
		return nil, fmt.Errorf("fetch document: %w", err)
	}
	return &doc, nil
}

func (r *Resolver) fetchAudit(ctx context.Context, u string) ([]domain.AuditEntry, error) {
	var raw []auditEntry
	if err := r.get(ctx, u, &raw); err != nil {
		return nil, fmt.Errorf("fetch audit log: %w", err)
	}

	entries := make([]domain.AuditEntry, 0, len(raw))
	for i, e := range raw {
		op, err := decodeOperation(e.Operation)
		if err != nil {
			return nil, fmt.Errorf("audit entry %d: %w", i, err)
		}
		entries = append(entries, domain.AuditEntry{
			DID:       e.DID,
			CID:       e.CID,
			Nullified: e.Nullified,
			CreatedAt: e.CreatedAt,
			Operation: op,
		})
	}
	return entries, nil
}

func (r *Resolver) get(ctx context.Context, u string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("GET %s: status %d: %s", u, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
