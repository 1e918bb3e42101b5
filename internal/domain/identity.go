package domain

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrUnsupportedDIDMethod is returned when a DID uses a method other than
// did:plc or did:web.
var ErrUnsupportedDIDMethod = errors.New("unsupported DID method")

// DIDDocument is a resolved DID document, reduced to the fields we use.
type DIDDocument struct {
	ID                 string               `json:"id"`
	AlsoKnownAs        []string             `json:"alsoKnownAs,omitempty"`
	VerificationMethod []VerificationMethod `json:"verificationMethod,omitempty"`
	Service            []Service            `json:"service,omitempty"`
}

type VerificationMethod struct {
	ID                 string `json:"id"`
	Type               string `json:"type"`
	Controller         string `json:"controller"`
	PublicKeyMultibase string `json:"publicKeyMultibase,omitempty"`
}

// Service is an entry of a DID document's service list.
type Service struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	ServiceEndpoint string `json:"serviceEndpoint"`
}

// IdentityInfo is the resolved identity of an account.
type IdentityInfo struct {
	DID    string `json:"did"`
	Method string `json:"method"`

	Document *DIDDocument `json:"document"`

	// Audit is the PLC operation log, oldest first. Always empty for did:web.
	Audit []AuditEntry `json:"audit"`

	// PDS is the display form of the storage host endpoint. For hosts on the
	// BlueSky network it is only the leading label (e.g. "morel").
	PDS string `json:"pds"`

	IsBskyHost bool `json:"isBskyHost"`

	// DIDDomain is the domain a did:web identifier resolves against.
	DIDDomain string `json:"didDomain,omitempty"`
}

// OperationKind tags the variants of a PLC operation.
type OperationKind string

const (
	OpCreate    OperationKind = "create"
	OpPLC       OperationKind = "plc_operation"
	OpTombstone OperationKind = "plc_tombstone"
)

// Operation is one of CreateOp, PLCOp, TombstoneOp or UnknownOp.
type Operation interface {
	Kind() OperationKind
	Signature() string
}

// CreateOp is the legacy genesis operation.
type CreateOp struct {
	Sig         string `json:"sig"`
	Prev        string `json:"prev,omitempty"`
	SigningKey  string `json:"signingKey"`
	RecoveryKey string `json:"recoveryKey"`
	Handle      string `json:"handle"`
	Service     string `json:"service"`
}

func (CreateOp) Kind() OperationKind { return OpCreate }
func (o CreateOp) Signature() string { return o.Sig }

// PLCOp creates or rotates the keys, handles and services of a DID.
type PLCOp struct {
	Sig                 string             `json:"sig"`
	Prev                string             `json:"prev,omitempty"`
	RotationKeys        []string           `json:"rotationKeys"`
	VerificationMethods map[string]string  `json:"verificationMethods"`
	AlsoKnownAs         []string           `json:"alsoKnownAs"`
	Services            map[string]Service `json:"services"`
}

func (PLCOp) Kind() OperationKind { return OpPLC }
func (o PLCOp) Signature() string { return o.Sig }

// TombstoneOp deactivates a DID.
type TombstoneOp struct {
	Sig  string `json:"sig"`
	Prev string `json:"prev"`
}

func (TombstoneOp) Kind() OperationKind { return OpTombstone }
func (o TombstoneOp) Signature() string { return o.Sig }

// UnknownOp is an operation of a type this package does not model. Raw is the
// operation as the directory returned it.
type UnknownOp struct {
	Type string          `json:"type"`
	Sig  string          `json:"sig,omitempty"`
	Prev string          `json:"prev,omitempty"`
	Raw  json.RawMessage `json:"raw"`
}

func (o UnknownOp) Kind() OperationKind { return OperationKind(o.Type) }
func (o UnknownOp) Signature() string   { return o.Sig }

// AuditEntry is one record of a PLC audit log.
type AuditEntry struct {
	DID       string
	CID       string
	Nullified bool
	CreatedAt time.Time
	Operation Operation
}

func (e AuditEntry) MarshalJSON() ([]byte, error) {
	out := struct {
		DID       string        `json:"did"`
		CID       string        `json:"cid"`
		Nullified bool          `json:"nullified"`
		CreatedAt time.Time     `json:"createdAt"`
		Kind      OperationKind `json:"kind,omitempty"`
		Operation Operation     `json:"operation,omitempty"`
	}{
		DID:       e.DID,
		CID:       e.CID,
		Nullified: e.Nullified,
		CreatedAt: e.CreatedAt,
		Operation: e.Operation,
	}
	if e.Operation != nil {
		out.Kind = e.Operation.Kind()
	}
	return json.Marshal(out)
}
