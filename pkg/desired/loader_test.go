package desired

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleBlueprints = `[
  {"identifier": "awsS3Bucket", "title": "S3 Bucket", "schema": {"properties": {}}},
  {"identifier": "awsLambdaFunction", "title": "Lambda Function"}
]`

const sampleAppConfig = `deleteDependentEntities: true
resources:
  - kind: s3
    selector:
      query: .source == "aws.s3"
    port:
      entity:
        mappings:
          identifier: .detail.bucket.name
          title: .detail.bucket.name
          blueprint: '"awsS3Bucket"'
          properties:
            region: .region
          relations:
            account: .account
  - kind: lambda
    port:
      entity:
        mappings:
          identifier: .detail.functionName
          blueprint: '"awsLambdaFunction"'
`

const sampleWebhookMappings = `[
  {"blueprint": "awsS3Bucket", "itemsToParse": ".detail", "entity": {"identifier": ".name"}}
]`

func writeResources(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func newTestLoader(dir string) *Loader {
	return NewLoader(dir, zerolog.Nop())
}

func TestLoad_FullResourcesDirectory(t *testing.T) {
	dir := writeResources(t, map[string]string{
		BlueprintsFile:      sampleBlueprints,
		AppConfigFile:       sampleAppConfig,
		WebhookMappingsFile: sampleWebhookMappings,
	})

	st, err := newTestLoader(dir).Load()
	require.NoError(t, err)

	assert.Len(t, st.Blueprints, 2)
	assert.Equal(t, "awsS3Bucket", st.Blueprints[0]["identifier"])

	assert.Equal(t, []string{"s3", "lambda"}, st.Config.Kinds())
	s3 := st.Config.ByKind()["s3"]
	assert.Equal(t, ".detail.bucket.name", s3.Entity.Identifier)
	assert.Equal(t, `"awsS3Bucket"`, s3.Entity.Blueprint)
	assert.Equal(t, ".region", s3.Entity.Properties["region"])
	assert.Equal(t, ".account", s3.Entity.Relations["account"])

	// The full document is preserved verbatim, extra keys included.
	assert.Equal(t, true, st.AppConfig["deleteDependentEntities"])

	require.Len(t, st.WebhookMappings, 1)
	assert.Equal(t, "awsS3Bucket", st.WebhookMappings[0]["blueprint"])

	assert.Equal(t, dir, st.Dir)
	assert.False(t, st.LoadedAt.IsZero())
}

func TestLoad_MissingBlueprintsFails(t *testing.T) {
	dir := writeResources(t, map[string]string{
		AppConfigFile: sampleAppConfig,
	})

	_, err := newTestLoader(dir).Load()

	require.Error(t, err)
	assert.Contains(t, err.Error(), BlueprintsFile)
}

func TestLoad_MissingAppConfigFails(t *testing.T) {
	dir := writeResources(t, map[string]string{
		BlueprintsFile: sampleBlueprints,
	})

	_, err := newTestLoader(dir).Load()

	require.Error(t, err)
	assert.Contains(t, err.Error(), AppConfigFile)
}

func TestLoad_WebhookMappingsOptional(t *testing.T) {
	dir := writeResources(t, map[string]string{
		BlueprintsFile: sampleBlueprints,
		AppConfigFile:  sampleAppConfig,
	})

	st, err := newTestLoader(dir).Load()

	require.NoError(t, err)
	assert.Nil(t, st.WebhookMappings)
}

func TestLoadBlueprints_MalformedJSONFails(t *testing.T) {
	dir := writeResources(t, map[string]string{
		BlueprintsFile: `{"not": "a list"}`,
	})

	_, err := newTestLoader(dir).LoadBlueprints()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse")
}

func TestLoadWebhookMappings_MalformedJSONFails(t *testing.T) {
	dir := writeResources(t, map[string]string{
		WebhookMappingsFile: `[{"unterminated": `,
	})

	_, err := newTestLoader(dir).LoadWebhookMappings()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse")
}

func TestLoadAppConfig_RejectsMissingKind(t *testing.T) {
	dir := writeResources(t, map[string]string{
		AppConfigFile: `resources:
  - port:
      entity:
        mappings:
          identifier: .x
`,
	})

	_, _, err := newTestLoader(dir).LoadAppConfig()

	require.Error(t, err)
	assert.Contains(t, err.Error(), AppConfigFile)
}

func TestLoadAppConfig_RejectsEmptyKind(t *testing.T) {
	dir := writeResources(t, map[string]string{
		AppConfigFile: `resources:
  - kind: ""
    port:
      entity:
        mappings:
          identifier: .x
`,
	})

	_, _, err := newTestLoader(dir).LoadAppConfig()

	require.Error(t, err)
}

func TestLoadAppConfig_RejectsNonListResources(t *testing.T) {
	dir := writeResources(t, map[string]string{
		AppConfigFile: `resources: not-a-list`,
	})

	_, _, err := newTestLoader(dir).LoadAppConfig()

	require.Error(t, err)
}

func TestLoadAppConfig_EmptyFileFails(t *testing.T) {
	dir := writeResources(t, map[string]string{
		AppConfigFile: "",
	})

	_, _, err := newTestLoader(dir).LoadAppConfig()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestLoadAppConfig_MalformedYAMLFails(t *testing.T) {
	dir := writeResources(t, map[string]string{
		AppConfigFile: "resources: [unclosed",
	})

	_, _, err := newTestLoader(dir).LoadAppConfig()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse")
}

func TestLoadAppConfig_ToleratesExtraKeysEverywhere(t *testing.T) {
	dir := writeResources(t, map[string]string{
		AppConfigFile: `createMissingRelatedEntities: false
resources:
  - kind: sqs
    futureField: whatever
    port:
      entity:
        mappings:
          identifier: .queue
          teamStrategy: default
      extra: true
`,
	})

	doc, config, err := newTestLoader(dir).LoadAppConfig()

	require.NoError(t, err)
	assert.Equal(t, false, doc["createMissingRelatedEntities"])
	assert.Equal(t, []string{"sqs"}, config.Kinds())
}

func TestLoadAppConfig_DuplicateKindsKeptInOrder(t *testing.T) {
	dir := writeResources(t, map[string]string{
		AppConfigFile: `resources:
  - kind: s3
    port:
      entity:
        mappings:
          identifier: .first
  - kind: s3
    port:
      entity:
        mappings:
          identifier: .second
`,
	})

	_, config, err := newTestLoader(dir).LoadAppConfig()
	require.NoError(t, err)

	// The document keeps both; indexing takes the later one.
	assert.Equal(t, []string{"s3", "s3"}, config.Kinds())
	assert.Equal(t, ".second", config.ByKind()["s3"].Entity.Identifier)
}

func TestNewLoader_EmptyDirFallsBack(t *testing.T) {
	assert.Equal(t, DefaultResourcesDir, newTestLoader("").Dir())
}
