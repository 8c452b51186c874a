package platform

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL, Token: "test-token"}, zerolog.Nop(), nil)
}

func writeDoc(w http.ResponseWriter, status int, doc interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(doc)
}

func TestAuthenticate_InstallsTokenForSubsequentCalls(t *testing.T) {
	var sawAuthHeader string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/auth/access_token":
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

			var body map[string]interface{}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "my-client", body["clientId"])
			assert.Equal(t, "my-secret", body["clientSecret"])

			writeDoc(w, http.StatusOK, map[string]string{"accessToken": "fresh-token"})
		case "/v1/blueprints/awsS3Bucket":
			sawAuthHeader = r.Header.Get("Authorization")
			writeDoc(w, http.StatusOK, map[string]string{"identifier": "awsS3Bucket"})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	require.NoError(t, client.Authenticate(context.Background(), "my-client", "my-secret"))

	_, err := client.GetBlueprint(context.Background(), "awsS3Bucket")
	require.NoError(t, err)
	assert.Equal(t, "Bearer fresh-token", sawAuthHeader)
}

func TestAuthenticate_EmptyTokenFails(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeDoc(w, http.StatusOK, map[string]string{})
	})

	err := client.Authenticate(context.Background(), "id", "secret")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no access token")
}

func TestAuthenticate_RejectedCredentials(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeDoc(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
	})

	err := client.Authenticate(context.Background(), "id", "wrong")

	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, StatusCode(err))
	assert.False(t, IsNotFound(err))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Contains(t, apiErr.Body, "invalid credentials")
}

func TestGetBlueprint_NotFoundIsControlSignal(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeDoc(w, http.StatusNotFound, map[string]string{"error": "not found"})
	})

	_, err := client.GetBlueprint(context.Background(), "missing")

	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Equal(t, http.StatusNotFound, StatusCode(err))
}

func TestCreateBlueprint_SendsDocumentVerbatim(t *testing.T) {
	doc := map[string]interface{}{
		"identifier": "awsS3Bucket",
		"title":      "S3 Bucket",
		"schema":     map[string]interface{}{"properties": map[string]interface{}{}},
	}

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/blueprints", r.URL.Path)

		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, doc, body)

		w.WriteHeader(http.StatusCreated)
	})

	require.NoError(t, client.CreateBlueprint(context.Background(), doc))
}

func TestGetIntegration_RequestShape(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/integration/aws-serverless", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		writeDoc(w, http.StatusOK, map[string]interface{}{
			"integration": map[string]interface{}{
				"installationId": "aws-serverless",
				"config":         map[string]interface{}{"resources": []interface{}{}},
			},
		})
	})

	doc, err := client.GetIntegration(context.Background(), "aws-serverless")
	require.NoError(t, err)

	unwrapped := UnwrapIntegration(doc)
	assert.Equal(t, "aws-serverless", unwrapped["installationId"])
}

func TestUpdateIntegrationConfig_PatchesSubresource(t *testing.T) {
	config := map[string]interface{}{"resources": []interface{}{}}

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/v1/integration/aws-serverless/config", r.URL.Path)

		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, config, body)

		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, client.UpdateIntegrationConfig(context.Background(), "aws-serverless", config))
}

func TestDeleteIntegration_RequestShape(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/v1/integration/aws-serverless", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, client.DeleteIntegration(context.Background(), "aws-serverless"))
}

func TestApplyWebhookMappings_PostsToMappingSubresource(t *testing.T) {
	mapping := map[string]interface{}{
		"blueprint": "awsS3Bucket",
		"entity":    map[string]interface{}{"identifier": ".name"},
	}

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/webhooks/aws_ingest/mapping", r.URL.Path)

		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, mapping, body)

		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, client.ApplyWebhookMappings(context.Background(), "aws_ingest", mapping))
}

func TestDo_EmptySuccessBodyLeavesOutUntouched(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	doc, err := client.GetWebhook(context.Background(), "aws_ingest")

	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestDo_ErrorBodyTruncatedAtReadLimit(t *testing.T) {
	huge := strings.Repeat("x", maxResponseBody+4096)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(huge))
	})

	_, err := client.GetWebhook(context.Background(), "aws_ingest")

	require.Error(t, err)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.LessOrEqual(t, len(apiErr.Body), maxResponseBody)
}

func TestNewClient_TrimsTrailingSlashAndVersionsBaseURL(t *testing.T) {
	client := NewClient(Config{BaseURL: "https://api.example.io/"}, zerolog.Nop(), nil)

	assert.Equal(t, "https://api.example.io/v1", client.BaseURL())
}

func TestNewClient_DefaultUserAgent(t *testing.T) {
	var sawUserAgent string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		sawUserAgent = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, client.CreateBlueprint(context.Background(), map[string]interface{}{"identifier": "x"}))
	assert.Equal(t, "portside", sawUserAgent)
}

func TestUnwrapIntegration_Shapes(t *testing.T) {
	flat := map[string]interface{}{"installationId": "x"}
	assert.Equal(t, flat, UnwrapIntegration(flat))

	wrapped := map[string]interface{}{
		"integration": map[string]interface{}{"installationId": "x"},
	}
	assert.Equal(t, flat, UnwrapIntegration(wrapped))

	// A non-object integration key is not an envelope.
	odd := map[string]interface{}{"integration": "aws-serverless"}
	assert.Equal(t, odd, UnwrapIntegration(odd))

	assert.Nil(t, UnwrapIntegration(nil))
}

func TestNewWebhookCreateRequest_Defaults(t *testing.T) {
	req := NewWebhookCreateRequest("aws_ingest", "AWS Events Webhook")

	assert.Equal(t, "aws_ingest", req.Identifier)
	assert.Equal(t, "AWS Events Webhook", req.Title)
	assert.True(t, req.Enabled)
	assert.Equal(t, "sha256", req.Security.SignatureAlgorithm)
	assert.Empty(t, req.Security.Secret)
	assert.NotNil(t, req.Mappings)
	assert.Empty(t, req.Mappings)
}

func TestNewIntegrationCreateRequest_Defaults(t *testing.T) {
	config := map[string]interface{}{"resources": []interface{}{}}
	req := NewIntegrationCreateRequest("aws-serverless", "aws-serverless", "1.0.0", config)

	assert.Equal(t, "aws-serverless", req.InstallationID)
	assert.Equal(t, "aws-serverless", req.InstallationAppType)
	assert.Equal(t, "1.0.0", req.Version)
	assert.NotNil(t, req.ChangelogDestination)
	assert.Empty(t, req.ChangelogDestination)
	assert.Equal(t, config, req.Config)
}

func TestStatusCode_NonAPIError(t *testing.T) {
	assert.Equal(t, 0, StatusCode(errors.New("plain")))
	assert.False(t, IsNotFound(errors.New("plain")))
}
