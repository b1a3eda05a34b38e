package scanner_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/temirov/charmrev/internal/charmstore"
	"github.com/temirov/charmrev/internal/scanner"
	"github.com/temirov/charmrev/internal/store"
)

const (
	provenanceWithRemoteConstant    = "commit-sha-1: 1a2b3c4d\nremote: https://github.com/canonical/example-charm\n"
	provenanceWithoutRemoteConstant = "commit-sha-1: fedcba98\n"
	provenanceWithoutShaConstant    = "remote: https://github.com/canonical/example-charm\n"
)

type stubRegistry struct {
	entityID              string
	entityError           error
	filesByRevision       map[int]map[string]charmstore.FileMetadata
	filesErrorsByRevision map[int][]error
	contentsByRevision    map[int]string
	contentErrorsByRev    map[int][]error
	filesCallCounts       map[int]int
	contentCallCounts     map[int]int
}

func (registry *stubRegistry) Entity(_ context.Context, _ string) (charmstore.EntityMetadata, error) {
	if registry.entityError != nil {
		return charmstore.EntityMetadata{}, registry.entityError
	}
	return charmstore.EntityMetadata{ID: registry.entityID}, nil
}

func (registry *stubRegistry) Files(_ context.Context, _ string, revisionNumber int) (map[string]charmstore.FileMetadata, error) {
	if registry.filesCallCounts == nil {
		registry.filesCallCounts = map[int]int{}
	}
	registry.filesCallCounts[revisionNumber]++

	if queuedErrors := registry.filesErrorsByRevision[revisionNumber]; len(queuedErrors) > 0 {
		nextError := queuedErrors[0]
		registry.filesErrorsByRevision[revisionNumber] = queuedErrors[1:]
		return nil, nextError
	}

	fileListing, listingKnown := registry.filesByRevision[revisionNumber]
	if !listingKnown {
		return nil, charmstore.ErrEntityNotFound
	}
	return fileListing, nil
}

func (registry *stubRegistry) FileContents(_ context.Context, _ string, revisionNumber int, _ string) (string, error) {
	if registry.contentCallCounts == nil {
		registry.contentCallCounts = map[int]int{}
	}
	registry.contentCallCounts[revisionNumber]++

	if queuedErrors := registry.contentErrorsByRev[revisionNumber]; len(queuedErrors) > 0 {
		nextError := queuedErrors[0]
		registry.contentErrorsByRev[revisionNumber] = queuedErrors[1:]
		return "", nextError
	}

	return registry.contentsByRevision[revisionNumber], nil
}

func listingWithProvenance() map[string]charmstore.FileMetadata {
	return map[string]charmstore.FileMetadata{
		"metadata.yaml":            {Name: "metadata.yaml", Size: 128},
		scanner.ProvenanceFileName: {Name: scanner.ProvenanceFileName, Size: 64},
	}
}

func listingWithoutProvenance() map[string]charmstore.FileMetadata {
	return map[string]charmstore.FileMetadata{
		"metadata.yaml": {Name: "metadata.yaml", Size: 128},
	}
}

func fastRetryPolicy(maxAttempts uint) scanner.RetryPolicy {
	return scanner.RetryPolicy{
		MaxAttempts:     maxAttempts,
		InitialInterval: time.Millisecond,
		MaximumInterval: time.Millisecond,
	}
}

func newTestService(t *testing.T, registry *stubRegistry) *scanner.Service {
	t.Helper()
	service, creationError := scanner.NewService(scanner.Dependencies{
		Registry:           registry,
		Logger:             zap.NewNop(),
		ListingRetryPolicy: fastRetryPolicy(3),
		ContentRetryPolicy: fastRetryPolicy(3),
	})
	require.NoError(t, creationError)
	return service
}

func TestNewServiceValidatesDependencies(t *testing.T) {
	testCases := []struct {
		name         string
		dependencies scanner.Dependencies
		expectedErr  error
	}{
		{
			name:         "MissingRegistry",
			dependencies: scanner.Dependencies{Logger: zap.NewNop()},
			expectedErr:  scanner.ErrRegistryNotConfigured,
		},
		{
			name:         "MissingLogger",
			dependencies: scanner.Dependencies{Registry: &stubRegistry{}},
			expectedErr:  scanner.ErrLoggerNotConfigured,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			service, creationError := scanner.NewService(testCase.dependencies)
			require.ErrorIs(t, creationError, testCase.expectedErr)
			require.Nil(t, service)
		})
	}
}

func TestScanRejectsEmptyCharmName(t *testing.T) {
	service := newTestService(t, &stubRegistry{entityID: "cs:example-1"})

	_, scanError := service.Scan(context.Background(), " ", 0)
	require.ErrorIs(t, scanError, scanner.ErrCharmNameRequired)
}

func TestScanPropagatesEntityLookupFailure(t *testing.T) {
	service := newTestService(t, &stubRegistry{entityError: charmstore.ErrEntityNotFound})

	_, scanError := service.Scan(context.Background(), "example", 0)
	require.ErrorIs(t, scanError, charmstore.ErrEntityNotFound)
}

func TestScanRejectsMalformedEntityIdentifier(t *testing.T) {
	service := newTestService(t, &stubRegistry{entityID: "cs:example"})

	_, scanError := service.Scan(context.Background(), "example", 0)
	require.ErrorContains(t, scanError, "does not end in a revision number")
}

func TestScanReturnsEmptyWhenNothingNew(t *testing.T) {
	registry := &stubRegistry{entityID: "cs:example-10"}
	service := newTestService(t, registry)

	scannedRecords, scanError := service.Scan(context.Background(), "example", 10)
	require.NoError(t, scanError)
	require.Empty(t, scannedRecords)
	require.Empty(t, registry.filesCallCounts)
}

func TestScanIncludesRevisionZeroForFirstRelease(t *testing.T) {
	registry := &stubRegistry{
		entityID:           "cs:example-0",
		filesByRevision:    map[int]map[string]charmstore.FileMetadata{0: listingWithProvenance()},
		contentsByRevision: map[int]string{0: provenanceWithRemoteConstant},
	}
	service := newTestService(t, registry)

	scannedRecords, scanError := service.Scan(context.Background(), "example", 0)
	require.NoError(t, scanError)
	require.Len(t, scannedRecords, 1)
	require.Equal(t, store.RevisionRecord{SHA: "1a2b3c4d", Owner: "canonical", RepoName: "example-charm"}, scannedRecords[0])
}

func TestScanExtractsProvenanceAcrossRange(t *testing.T) {
	registry := &stubRegistry{
		entityID: "cs:example-12",
		filesByRevision: map[int]map[string]charmstore.FileMetadata{
			12: listingWithProvenance(),
			11: listingWithProvenance(),
		},
		contentsByRevision: map[int]string{
			12: provenanceWithRemoteConstant,
			11: provenanceWithoutRemoteConstant,
		},
	}
	service := newTestService(t, registry)

	scannedRecords, scanError := service.Scan(context.Background(), "example", 10)
	require.NoError(t, scanError)
	require.Len(t, scannedRecords, 2)
	require.Equal(t, store.RevisionRecord{SHA: "1a2b3c4d", Owner: "canonical", RepoName: "example-charm"}, scannedRecords[12])
	require.Equal(t, store.RevisionRecord{SHA: "fedcba98"}, scannedRecords[11])
}

func TestScanSkipsRevisionWithoutCommitIdentifier(t *testing.T) {
	registry := &stubRegistry{
		entityID:           "cs:example-5",
		filesByRevision:    map[int]map[string]charmstore.FileMetadata{5: listingWithProvenance()},
		contentsByRevision: map[int]string{5: provenanceWithoutShaConstant},
	}
	service := newTestService(t, registry)

	scannedRecords, scanError := service.Scan(context.Background(), "example", 4)
	require.NoError(t, scanError)
	require.Empty(t, scannedRecords)
}

func TestScanSkipsRevisionWithoutProvenanceFile(t *testing.T) {
	registry := &stubRegistry{
		entityID:        "cs:example-5",
		filesByRevision: map[int]map[string]charmstore.FileMetadata{5: listingWithoutProvenance()},
	}
	service := newTestService(t, registry)

	scannedRecords, scanError := service.Scan(context.Background(), "example", 4)
	require.NoError(t, scanError)
	require.Empty(t, scannedRecords)
	require.Empty(t, registry.contentCallCounts)
}

func TestScanListingRetryExhaustionSkipsOnlyThatRevision(t *testing.T) {
	registry := &stubRegistry{
		entityID: "cs:example-6",
		filesErrorsByRevision: map[int][]error{
			6: {charmstore.ErrServerTransient, charmstore.ErrServerTransient, charmstore.ErrServerTransient},
		},
		filesByRevision: map[int]map[string]charmstore.FileMetadata{
			5: listingWithProvenance(),
		},
		contentsByRevision: map[int]string{5: provenanceWithRemoteConstant},
	}
	service := newTestService(t, registry)

	scannedRecords, scanError := service.Scan(context.Background(), "example", 4)
	require.NoError(t, scanError)
	require.NotContains(t, scannedRecords, 6)
	require.Contains(t, scannedRecords, 5)
	require.Equal(t, 3, registry.filesCallCounts[6])
}

func TestScanListingTransientRecoversWithinBudget(t *testing.T) {
	registry := &stubRegistry{
		entityID: "cs:example-3",
		filesErrorsByRevision: map[int][]error{
			3: {charmstore.ErrServerTransient, charmstore.ErrServerTransient},
		},
		filesByRevision:    map[int]map[string]charmstore.FileMetadata{3: listingWithProvenance()},
		contentsByRevision: map[int]string{3: provenanceWithRemoteConstant},
	}
	service := newTestService(t, registry)

	scannedRecords, scanError := service.Scan(context.Background(), "example", 2)
	require.NoError(t, scanError)
	require.Contains(t, scannedRecords, 3)
	require.Equal(t, 3, registry.filesCallCounts[3])
}

func TestScanSkipDecisionsDoNotRetry(t *testing.T) {
	testCases := []struct {
		name         string
		listingError error
	}{
		{name: "EntityNotFound", listingError: charmstore.ErrEntityNotFound},
		{name: "InteractionRequired", listingError: charmstore.ErrInteractionRequired},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			registry := &stubRegistry{
				entityID: "cs:example-4",
				filesErrorsByRevision: map[int][]error{
					4: {testCase.listingError},
				},
				filesByRevision: map[int]map[string]charmstore.FileMetadata{},
			}
			service := newTestService(t, registry)

			scannedRecords, scanError := service.Scan(context.Background(), "example", 3)
			require.NoError(t, scanError)
			require.Empty(t, scannedRecords)
			require.Equal(t, 1, registry.filesCallCounts[4])
		})
	}
}

func TestScanPropagatesUnclassifiedListingError(t *testing.T) {
	unclassifiedError := errors.New("connection reset")
	registry := &stubRegistry{
		entityID: "cs:example-4",
		filesErrorsByRevision: map[int][]error{
			4: {unclassifiedError},
		},
	}
	service := newTestService(t, registry)

	_, scanError := service.Scan(context.Background(), "example", 3)
	require.ErrorIs(t, scanError, unclassifiedError)
}

func TestScanContentRetryExhaustionSkipsRevision(t *testing.T) {
	registry := &stubRegistry{
		entityID:        "cs:example-2",
		filesByRevision: map[int]map[string]charmstore.FileMetadata{2: listingWithProvenance()},
		contentErrorsByRev: map[int][]error{
			2: {charmstore.ErrServerTransient, charmstore.ErrServerTransient, charmstore.ErrServerTransient},
		},
	}
	service := newTestService(t, registry)

	scannedRecords, scanError := service.Scan(context.Background(), "example", 1)
	require.NoError(t, scanError)
	require.Empty(t, scannedRecords)
	require.Equal(t, 3, registry.contentCallCounts[2])
}

func TestScanContentTransientRecoversWithinBudget(t *testing.T) {
	registry := &stubRegistry{
		entityID:        "cs:example-2",
		filesByRevision: map[int]map[string]charmstore.FileMetadata{2: listingWithProvenance()},
		contentErrorsByRev: map[int][]error{
			2: {charmstore.ErrServerTransient},
		},
		contentsByRevision: map[int]string{2: provenanceWithRemoteConstant},
	}
	service := newTestService(t, registry)

	scannedRecords, scanError := service.Scan(context.Background(), "example", 1)
	require.NoError(t, scanError)
	require.Contains(t, scannedRecords, 2)
	require.Equal(t, 2, registry.contentCallCounts[2])
}
