package destination

import (
	"context"
	"errors"
	"strings"

	"github.com/onairlab/studio-core/crypto"
)

// RTMPAdapter handles raw RTMP destinations. The user supplies the ingest URL
// and optional stream key when linking; there is no remote lifecycle to drive,
// so create only echoes the stored endpoint and finalize is a no-op.
type RTMPAdapter struct{}

func (RTMPAdapter) Provider() Provider { return ProviderRTMP }

// CreateBroadcast returns the stored ingest endpoint.
func (RTMPAdapter) CreateBroadcast(_ context.Context, creds crypto.Credentials, _ BroadcastParams) (ExternalBroadcast, error) {
	if creds.IngestURL == "" {
		return ExternalBroadcast{}, errors.New("rtmp destination has no ingest url")
	}
	ingest := creds.IngestURL
	if creds.StreamKey != "" {
		ingest = strings.TrimSuffix(ingest, "/") + "/" + creds.StreamKey
	}
	return ExternalBroadcast{IngestURL: ingest}, nil
}

// Finalize is a no-op for raw RTMP.
func (RTMPAdapter) Finalize(context.Context, crypto.Credentials, ExternalBroadcast) error {
	return nil
}
