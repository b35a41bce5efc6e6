package contentstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// PinStore publishes content through a Pinata-compatible IPFS pinning API
// and retrieves it through a public gateway. Every request carries a
// timeout so a slow pinning service surfaces as ErrUnavailable rather than
// hanging a publish or an exam start.
type PinStore struct {
	apiURL     string
	gatewayURL string
	jwt        string
	client     *http.Client
	log        zerolog.Logger
}

// NewPinStore creates a PinStore. timeout bounds every pin/fetch request.
func NewPinStore(apiURL, gatewayURL, jwt string, timeout time.Duration, log zerolog.Logger) *PinStore {
	return &PinStore{
		apiURL:     apiURL,
		gatewayURL: gatewayURL,
		jwt:        jwt,
		client:     &http.Client{Timeout: timeout},
		log:        log.With().Str("component", "pin_store").Logger(),
	}
}

type pinRequest struct {
	PinataOptions  pinOptions      `json:"pinataOptions"`
	PinataMetadata pinMetadata     `json:"pinataMetadata"`
	PinataContent  json.RawMessage `json:"pinataContent"`
}

type pinOptions struct {
	CidVersion int `json:"cidVersion"`
}

type pinMetadata struct {
	Name      string            `json:"name"`
	KeyValues map[string]string `json:"keyvalues,omitempty"`
}

type pinResponse struct {
	IpfsHash string `json:"IpfsHash"`
}

// Put pins the content JSON and returns its content-addressed locator (CID).
func (s *PinStore) Put(ctx context.Context, content []byte) (string, error) {
	if !json.Valid(content) {
		return "", fmt.Errorf("pin content must be valid JSON")
	}

	body, err := json.Marshal(pinRequest{
		PinataOptions: pinOptions{CidVersion: 1},
		PinataMetadata: pinMetadata{
			Name:      fmt.Sprintf("exam_%d", time.Now().UnixMilli()),
			KeyValues: map[string]string{"type": "encrypted_exam"},
		},
		PinataContent: content,
	})
	if err != nil {
		return "", fmt.Errorf("marshal pin request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL+"/pinning/pinJSONToIPFS", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build pin request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.jwt)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: pin: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: pin returned status %d", ErrUnavailable, resp.StatusCode)
	}

	var pinned pinResponse
	if err := json.NewDecoder(resp.Body).Decode(&pinned); err != nil {
		return "", fmt.Errorf("%w: decode pin response: %v", ErrUnavailable, err)
	}
	if pinned.IpfsHash == "" {
		return "", fmt.Errorf("%w: pin response missing hash", ErrUnavailable)
	}

	s.log.Debug().Str("locator", pinned.IpfsHash).Int("bytes", len(content)).Msg("Content pinned")
	return pinned.IpfsHash, nil
}

// Get fetches pinned content from the public gateway by locator.
func (s *PinStore) Get(ctx context.Context, locator string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.gatewayURL+"/"+locator, nil)
	if err != nil {
		return nil, fmt.Errorf("build gateway request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: gateway: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: locator %s", ErrNotFound, locator)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: gateway returned status %d", ErrUnavailable, resp.StatusCode)
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read gateway response: %v", ErrUnavailable, err)
	}
	return content, nil
}
