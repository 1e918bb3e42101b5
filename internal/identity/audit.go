package identity

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/blackmichael/skystats/internal/domain"
)

// auditEntry is one element of a PLC directory audit log response.
type auditEntry struct {
	DID       string          `json:"did"`
	CID       string          `json:"cid"`
	Nullified bool            `json:"nullified"`
	CreatedAt time.Time       `json:"createdAt"`
	Operation json.RawMessage `json:"operation"`
}

// operationV0 is the union of every operation shape the directory returns,
// discriminated by Type.
type operationV0 struct {
	Type string `json:"type"`
	Sig  string `json:"sig"`
	Prev string `json:"prev"`

	// create
	SigningKey  string `json:"signingKey"`
	RecoveryKey string `json:"recoveryKey"`
	Handle      string `json:"handle"`
	Service     string `json:"service"`

	// plc_operation
	RotationKeys        []string              `json:"rotationKeys"`
	VerificationMethods map[string]string     `json:"verificationMethods"`
	AlsoKnownAs         []string              `json:"alsoKnownAs"`
	Services            map[string]plcService `json:"services"`
}

type plcService struct {
	Type     string `json:"type"`
	Endpoint string `json:"endpoint"`
}

// decodeOperation maps a raw directory operation onto the domain union.
// Operation types added to the directory later decode as domain.UnknownOp.
func decodeOperation(raw json.RawMessage) (domain.Operation, error) {
	var o operationV0
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, fmt.Errorf("decode operation: %w", err)
	}

	switch domain.OperationKind(o.Type) {
	case domain.OpCreate:
		return domain.CreateOp{
			Sig:         o.Sig,
			Prev:        o.Prev,
			SigningKey:  o.SigningKey,
			RecoveryKey: o.RecoveryKey,
			Handle:      o.Handle,
			Service:     o.Service,
		}, nil

	case domain.OpPLC:
		services := make(map[string]domain.Service, len(o.Services))
		for id, svc := range o.Services {
			services[id] = domain.Service{ID: "#" + id, Type: svc.Type, ServiceEndpoint: svc.Endpoint}
		}
		return domain.PLCOp{
			Sig:                 o.Sig,
			Prev:                o.Prev,
			RotationKeys:        o.RotationKeys,
			VerificationMethods: o.VerificationMethods,
			AlsoKnownAs:         o.AlsoKnownAs,
			Services:            services,
		}, nil

	case domain.OpTombstone:
		return domain.TombstoneOp{Sig: o.Sig, Prev: o.Prev}, nil

	default:
		return domain.UnknownOp{Type: o.Type, Sig: o.Sig, Prev: o.Prev, Raw: raw}, nil
	}
}
