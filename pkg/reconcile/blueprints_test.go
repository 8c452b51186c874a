package reconcile

import (
	"context"
	"net/http"
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"github.com/portside/portside/pkg/platform"
)

func newTestEnsurer(f *fakePlatform) *BlueprintEnsurer {
	logger := zerolog.New(nil).Level(zerolog.Disabled)
	return NewBlueprintEnsurer(f, logger, nil)
}

func TestEnsureBlueprintsMixedBatch(t *testing.T) {
	f := newFakePlatform()
	f.blueprints["lambdaFunction"] = map[string]interface{}{"identifier": "lambdaFunction"}
	f.blueprintCreateErr = map[string]error{
		"rejected": &platform.APIError{
			StatusCode: http.StatusUnprocessableEntity,
			Method:     http.MethodPost,
			Path:       "/blueprints",
		},
	}
	e := newTestEnsurer(f)

	results := e.Ensure(context.Background(), []map[string]interface{}{
		{"identifier": "lambdaFunction", "title": "Lambda Function"},
		{"identifier": "s3Bucket", "title": "S3 Bucket"},
		{"title": "no identifier"},
		{"identifier": "rejected"},
	})

	if len(results) != 4 {
		t.Fatalf("expected one result per document, got %d", len(results))
	}

	wantActions := []BlueprintAction{BlueprintExists, BlueprintCreated, BlueprintSkipped, BlueprintFailed}
	for i, want := range wantActions {
		if results[i].Action != want {
			t.Errorf("result %d: expected action %s, got %s", i, want, results[i].Action)
		}
	}

	if results[2].Identifier != "" {
		t.Errorf("a skipped document has no identifier, got %q", results[2].Identifier)
	}
	if results[3].Err == nil {
		t.Fatal("a failed creation must carry its error")
	}
	if !IsTransport(results[3].Err) {
		t.Errorf("expected a transport-class error, got %v", results[3].Err)
	}

	// The failure did not abort the batch: both missing blueprints were
	// attempted, the skipped document never reached the API.
	if want := []string{"s3Bucket", "rejected"}; !reflect.DeepEqual(f.blueprintCreates, want) {
		t.Errorf("expected creates %v, got %v", want, f.blueprintCreates)
	}
	if want := []string{"lambdaFunction", "s3Bucket", "rejected"}; !reflect.DeepEqual(f.blueprintGets, want) {
		t.Errorf("expected lookups %v, got %v", want, f.blueprintGets)
	}
}

func TestEnsureBlueprintsSecondPassCreatesNothing(t *testing.T) {
	f := newFakePlatform()
	e := newTestEnsurer(f)
	docs := []map[string]interface{}{
		{"identifier": "lambdaFunction"},
		{"identifier": "s3Bucket"},
	}

	first := e.Ensure(context.Background(), docs)
	for i, r := range first {
		if r.Action != BlueprintCreated {
			t.Errorf("first pass result %d: expected %s, got %s", i, BlueprintCreated, r.Action)
		}
	}

	second := e.Ensure(context.Background(), docs)
	for i, r := range second {
		if r.Action != BlueprintExists {
			t.Errorf("second pass result %d: expected %s, got %s", i, BlueprintExists, r.Action)
		}
	}

	if len(f.blueprintCreates) != 2 {
		t.Errorf("the second pass must not create anything, total creates %v", f.blueprintCreates)
	}
}

func TestEnsureBlueprintCreatesOnLookupError(t *testing.T) {
	f := newFakePlatform()
	f.blueprintGetErr = &platform.APIError{
		StatusCode: http.StatusInternalServerError,
		Method:     http.MethodGet,
		Path:       "/blueprints/lambdaFunction",
	}
	e := newTestEnsurer(f)

	// An unreadable lookup is not proof of absence, but creation is the
	// only way forward; the platform rejects duplicates harmlessly.
	results := e.Ensure(context.Background(), []map[string]interface{}{
		{"identifier": "lambdaFunction"},
	})

	if results[0].Action != BlueprintCreated {
		t.Errorf("expected action %s, got %s", BlueprintCreated, results[0].Action)
	}
	if len(f.blueprintCreates) != 1 {
		t.Errorf("expected one creation attempt, got %d", len(f.blueprintCreates))
	}
}

func TestEnsureBlueprintsEmptyBatch(t *testing.T) {
	f := newFakePlatform()
	e := newTestEnsurer(f)

	results := e.Ensure(context.Background(), nil)
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
	if len(f.calls) != 0 {
		t.Errorf("expected no remote calls, got %v", f.calls)
	}
}
