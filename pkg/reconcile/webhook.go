package reconcile

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/portside/portside/pkg/extract"
	"github.com/portside/portside/pkg/platform"
)

const (
	// DefaultWebhookIdentifier is the webhook identifier used when no
	// reference is supplied.
	DefaultWebhookIdentifier = "aws_ingest"

	// DefaultWebhookTitle is the title given to webhooks the resolver
	// creates.
	DefaultWebhookTitle = "AWS Events Webhook"

	// MinWebhookKeyLength is the minimum length of an opaque webhook
	// key. Anything shorter is treated as a human-chosen identifier.
	MinWebhookKeyLength = 10
)

// NormalizeWebhookIdentifier reduces a webhook reference to an
// identifier: absent becomes the default identifier, a URL containing
// a "/webhooks/" segment yields the element after it with any trailing
// query or path stripped, and anything else passes through unchanged.
func NormalizeWebhookIdentifier(ref string) string {
	if ref == "" {
		return DefaultWebhookIdentifier
	}
	if idx := strings.Index(ref, "/webhooks/"); idx >= 0 {
		rest := ref[idx+len("/webhooks/"):]
		if rest != "" {
			rest = strings.SplitN(rest, "?", 2)[0]
			return strings.SplitN(rest, "/", 2)[0]
		}
	}
	return ref
}

// webhookURLRules probes the locations where a response document may
// carry a full ingestion URL.
func webhookURLRules(ingestBase string) []extract.Rule {
	onBase := extract.HasPrefix(ingestBase)
	return []extract.Rule{
		{Path: "url", Validate: onBase},
		{Path: "integration.url", Validate: onBase},
		{Path: "webhook.url", Validate: onBase},
	}
}

// webhookKeyRules probes the locations where a response document may
// carry an opaque webhook key.
func webhookKeyRules() []extract.Rule {
	key := extract.Alphanumeric(MinWebhookKeyLength)
	return []extract.Rule{
		{Path: "webhookKey", Validate: key},
		{Path: "integration.webhookKey", Validate: key},
		{Path: "webhook.webhookKey", Validate: key},
		{Path: "id", Validate: key},
		{Path: "_id", Validate: key},
	}
}

// ExtractWebhookURL pulls an ingestion URL out of a webhook API
// response document. Direct URL fields win over opaque keys; a key is
// joined onto the ingest base. Returns false when the document carries
// neither.
func ExtractWebhookURL(doc map[string]interface{}, ingestBaseURL string) (string, bool) {
	base := strings.TrimRight(ingestBaseURL, "/")
	if url, ok := extract.FirstMatch(doc, webhookURLRules(base)); ok {
		return url, true
	}
	if key, ok := extract.FirstMatch(doc, webhookKeyRules()); ok {
		return base + "/" + key, true
	}
	return "", false
}

// WebhookResolver turns a webhook reference into a canonical ingestion
// URL, creating the webhook remotely when nothing resolvable exists.
// Produced URLs always start with the configured ingest base URL.
type WebhookResolver struct {
	api           WebhookAPI
	ingestBaseURL string
	logger        zerolog.Logger
}

// NewWebhookResolver creates a webhook resolver against the given
// ingest base URL.
func NewWebhookResolver(api WebhookAPI, ingestBaseURL string, logger zerolog.Logger) *WebhookResolver {
	return &WebhookResolver{
		api:           api,
		ingestBaseURL: strings.TrimRight(ingestBaseURL, "/"),
		logger:        logger.With().Str("component", "webhook").Logger(),
	}
}

// ResolveOrCreate resolves ref to a webhook URL. References that
// already carry the answer (full URLs and bare opaque keys) resolve
// locally with no remote call. Everything else is normalized to an
// identifier, looked up, and created on a miss or when the lookup
// response carries nothing extractable.
func (r *WebhookResolver) ResolveOrCreate(ctx context.Context, ref string) (string, error) {
	if ref != "" {
		if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
			if strings.HasPrefix(ref, r.ingestBaseURL) {
				return ref, nil
			}
			// Foreign URL: keep only its trailing segment and rebuild
			// on the ingest base.
			trimmed := strings.TrimRight(ref, "/")
			segment := trimmed[strings.LastIndex(trimmed, "/")+1:]
			return r.ingestBaseURL + "/" + segment, nil
		}
		if isBareWebhookKey(ref) {
			return r.ingestBaseURL + "/" + ref, nil
		}
	}

	identifier := NormalizeWebhookIdentifier(ref)

	r.logger.Info().Str("webhook", identifier).Msg("Checking for existing webhook")
	doc, err := r.api.GetWebhook(ctx, identifier)
	if err == nil {
		if url, ok := ExtractWebhookURL(doc, r.ingestBaseURL); ok {
			r.logger.Info().Str("webhook", identifier).Str("url", url).Msg("Resolved existing webhook")
			return url, nil
		}
		r.logger.Debug().Str("webhook", identifier).Msg("Existing webhook carried no usable URL, creating a fresh one")
	} else if !platform.IsNotFound(err) {
		r.logger.Debug().Err(err).Str("webhook", identifier).Msg("Webhook lookup failed, attempting creation")
	}

	return r.create(ctx, identifier)
}

func (r *WebhookResolver) create(ctx context.Context, identifier string) (string, error) {
	r.logger.Info().Str("webhook", identifier).Msg("Creating webhook")

	doc, err := r.api.CreateWebhook(ctx, platform.NewWebhookCreateRequest(identifier, DefaultWebhookTitle))
	if err != nil {
		return "", NewTransportError("failed to create webhook", err).
			WithCode(ErrCodeWebhookCreate).
			WithResource(identifier).
			WithOperation("webhook.create")
	}

	url, ok := ExtractWebhookURL(doc, r.ingestBaseURL)
	if !ok {
		return "", NewSetupError("webhook created but the response carried no URL or key", nil).
			WithCode(ErrCodeWebhookUnextractable).
			WithResource(identifier).
			WithOperation("webhook.create").
			WithHint("pass --webhook with the full ingestion URL shown in the platform UI")
	}

	r.logger.Info().Str("webhook", identifier).Str("url", url).Msg("Created webhook")
	return url, nil
}

// isBareWebhookKey reports whether ref is an opaque webhook key:
// alphanumeric and at least MinWebhookKeyLength characters.
func isBareWebhookKey(ref string) bool {
	return extract.Alphanumeric(MinWebhookKeyLength)(ref)
}
