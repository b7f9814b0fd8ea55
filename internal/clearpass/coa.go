package clearpass

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ArubaIberia/agora/internal/auth"
	"github.com/ArubaIberia/agora/internal/credentials"
	"github.com/ArubaIberia/agora/internal/logger"
	"github.com/ArubaIberia/agora/internal/session"
)

// CoARequest is the message that asks for an endpoint to be quarantined or
// released. Host, User and Pass select the ClearPass server and API client;
// when all three are empty the worker's own session is used.
type CoARequest struct {
	Host        string `json:"host"`
	User        string `json:"user"`
	Pass        string `json:"pass"`
	EndpointMAC string `json:"endpoint_mac"`
	NASIP       string `json:"nas_ip"`
	Threat      *bool  `json:"threat"`
}

// ValidationError reports a malformed CoA request.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("malformed CoA request: missing %q", e.Field)
}

func (r CoARequest) validate(shared bool) error {
	fields := [][2]string{
		{"endpoint_mac", r.EndpointMAC},
		{"nas_ip", r.NASIP},
	}
	if !shared || r.Host != "" || r.User != "" || r.Pass != "" {
		fields = append([][2]string{{"host", r.Host}, {"user", r.User}, {"pass", r.Pass}}, fields...)
	}
	for _, f := range fields {
		if f[1] == "" {
			return &ValidationError{Field: f[0]}
		}
	}
	if r.Threat == nil {
		return &ValidationError{Field: "threat"}
	}
	return nil
}

// CoAHandler updates the threat attributes of an endpoint and disconnects its
// latest session so the NAS re-applies policy.
type CoAHandler struct {
	insecure bool
	shared   *session.Session
	opts     []session.Option
	log      zerolog.Logger
}

// NewCoAHandler creates the handler. shared may be nil, in which case every
// request must carry its own ClearPass credentials.
func NewCoAHandler(shared *session.Session, insecureSkipVerify bool, opts ...session.Option) *CoAHandler {
	return &CoAHandler{
		insecure: insecureSkipVerify,
		shared:   shared,
		opts:     opts,
		log:      logger.For("coa"),
	}
}

// Handle processes one JSON-encoded CoARequest. It has the signature of a
// message bus handler.
func (h *CoAHandler) Handle(ctx context.Context, topic string, data []byte) ([]byte, error) {
	var req CoARequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("malformed CoA request on %s: %w", topic, err)
	}
	if err := req.validate(h.shared != nil); err != nil {
		return nil, err
	}

	log := h.log.With().Str("topic", topic).Str("mac", req.EndpointMAC).Str("nas_ip", req.NASIP).Logger()
	log.Info().Bool("threat", *req.Threat).Msg("Received CoA request")

	if req.Host == "" {
		if err := h.apply(ctx, h.shared, req); err != nil {
			return nil, err
		}
		log.Info().Msg("CoA completed")
		return nil, nil
	}

	store := credentials.NewMapStore(map[string]credentials.Section{
		credentials.SectionClearPass: {
			credentials.KeyGrantType:    auth.GrantClientCredentials,
			credentials.KeyAPIHost:      req.Host,
			credentials.KeyClientID:     req.User,
			credentials.KeyClientSecret: req.Pass,
		},
	})
	creds, err := auth.Resolve(store, credentials.SectionClearPass, auth.Credentials{})
	if err != nil {
		return nil, err
	}

	a := auth.NewClearPass(auth.Options{InsecureSkipVerify: h.insecure})
	err = session.With(ctx, a, creds, func(ctx context.Context, s *session.Session) error {
		return h.apply(ctx, s, req)
	}, h.opts...)
	if err != nil {
		return nil, err
	}
	log.Info().Msg("CoA completed")
	return nil, nil
}

func (h *CoAHandler) apply(ctx context.Context, s *session.Session, req CoARequest) error {
	c := NewClient(s, h.insecure)
	if err := c.UpdateEndpointThreat(ctx, req.EndpointMAC, *req.Threat); err != nil {
		return err
	}
	acct, err := c.LatestSession(ctx, req.EndpointMAC, req.NASIP)
	if err != nil {
		return err
	}
	return c.Disconnect(ctx, acct.ID)
}
