package scanner

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/charmrev/internal/charmstore"
	"github.com/temirov/charmrev/internal/provenance"
	"github.com/temirov/charmrev/internal/store"
)

const (
	// ProvenanceFileName is the archive entry carrying build provenance.
	// It was introduced partway through charmstore history, so older
	// revisions legitimately lack it.
	ProvenanceFileName = "repo-info"

	registryMissingMessageConstant          = "registry client not configured"
	loggerMissingMessageConstant            = "logger not configured"
	charmNameRequiredMessageConstant        = "charm name must be provided"
	malformedIdentifierTemplateConstant     = "entity identifier %q does not end in a revision number"
	entityLookupErrorTemplateConstant       = "unable to look up charm %s: %w"
	listingSkipNotFoundMessageConstant      = "revision listing missing, skipping"
	listingSkipInteractionMessageConstant   = "charmstore login issue, skipping revision"
	listingSkipExhaustedMessageConstant     = "listing retries exhausted, skipping revision"
	provenanceMissingMessageConstant        = "no provenance file in revision, skipping"
	provenanceFetchExhaustedMessageConstant = "provenance fetch retries exhausted, skipping revision"
	provenanceUnparsableMessageConstant     = "no commit identifier in provenance, skipping revision"
	revisionRecordedMessageConstant         = "recorded revision provenance"
	scanStartedMessageConstant              = "scanning charm revisions"
	logFieldCharmConstant                   = "charm"
	logFieldRevisionConstant                = "revision"
	logFieldHighestRevisionConstant         = "highest_revision"
	logFieldLastCheckedConstant             = "last_checked_revision"
	logFieldSHAConstant                     = "sha"
)

// ErrRegistryNotConfigured indicates the registry dependency was missing.
var ErrRegistryNotConfigured = errors.New(registryMissingMessageConstant)

// ErrLoggerNotConfigured indicates the logger dependency was missing.
var ErrLoggerNotConfigured = errors.New(loggerMissingMessageConstant)

// ErrCharmNameRequired indicates a scan received an empty charm name.
var ErrCharmNameRequired = errors.New(charmNameRequiredMessageConstant)

var trailingRevisionPattern = regexp.MustCompile(`-(\d+)$`)

// Registry is the charmstore surface the scanner consumes.
type Registry interface {
	Entity(executionContext context.Context, charmName string) (charmstore.EntityMetadata, error)
	Files(executionContext context.Context, charmName string, revisionNumber int) (map[string]charmstore.FileMetadata, error)
	FileContents(executionContext context.Context, charmName string, revisionNumber int, fileName string) (string, error)
}

// Dependencies enumerates the collaborators required by the scanner.
type Dependencies struct {
	Registry           Registry
	Logger             *zap.Logger
	ListingRetryPolicy RetryPolicy
	ContentRetryPolicy RetryPolicy
}

// Service walks charmstore revisions and extracts provenance records.
type Service struct {
	registry           Registry
	logger             *zap.Logger
	listingRetryPolicy RetryPolicy
	contentRetryPolicy RetryPolicy
}

// NewService constructs a Service from the provided dependencies. Zero-valued
// retry policies fall back to the package defaults.
func NewService(dependencies Dependencies) (*Service, error) {
	if dependencies.Registry == nil {
		return nil, ErrRegistryNotConfigured
	}
	if dependencies.Logger == nil {
		return nil, ErrLoggerNotConfigured
	}

	listingRetryPolicy := dependencies.ListingRetryPolicy
	if listingRetryPolicy.isZero() {
		listingRetryPolicy = ListingRetryPolicy()
	}
	contentRetryPolicy := dependencies.ContentRetryPolicy
	if contentRetryPolicy.isZero() {
		contentRetryPolicy = ContentRetryPolicy()
	}

	return &Service{
		registry:           dependencies.Registry,
		logger:             dependencies.Logger,
		listingRetryPolicy: listingRetryPolicy,
		contentRetryPolicy: contentRetryPolicy,
	}, nil
}

// Scan walks revisions of the named charm from the highest published one down
// to lastCheckedRevision exclusive and returns provenance records keyed by
// revision number. Revisions without usable provenance are absent from the
// result. An empty result means nothing new was found.
func (service *Service) Scan(executionContext context.Context, charmName string, lastCheckedRevision int) (map[int]store.RevisionRecord, error) {
	if len(strings.TrimSpace(charmName)) == 0 {
		return nil, ErrCharmNameRequired
	}

	entityMetadata, entityError := service.registry.Entity(executionContext, charmName)
	if entityError != nil {
		return nil, fmt.Errorf(entityLookupErrorTemplateConstant, charmName, entityError)
	}

	highestRevision, identifierError := parseHighestRevision(entityMetadata.ID)
	if identifierError != nil {
		return nil, identifierError
	}

	// A charm with exactly one zero-indexed release would otherwise never
	// enter the loop below.
	if highestRevision == 0 {
		lastCheckedRevision = -1
	}

	service.logger.Debug(
		scanStartedMessageConstant,
		zap.String(logFieldCharmConstant, charmName),
		zap.Int(logFieldHighestRevisionConstant, highestRevision),
		zap.Int(logFieldLastCheckedConstant, lastCheckedRevision),
	)

	revisionRecords := map[int]store.RevisionRecord{}
	for revisionNumber := highestRevision; revisionNumber > lastCheckedRevision; revisionNumber-- {
		revisionRecord, recordFound, revisionError := service.scanRevision(executionContext, charmName, revisionNumber)
		if revisionError != nil {
			return nil, revisionError
		}
		if recordFound {
			revisionRecords[revisionNumber] = revisionRecord
		}
	}

	return revisionRecords, nil
}

func (service *Service) scanRevision(executionContext context.Context, charmName string, revisionNumber int) (store.RevisionRecord, bool, error) {
	revisionLogger := service.logger.With(
		zap.String(logFieldCharmConstant, charmName),
		zap.Int(logFieldRevisionConstant, revisionNumber),
	)

	fileMetadataByName, listingError := executeWithPolicy(
		executionContext,
		service.listingRetryPolicy,
		isTransientError,
		func() (map[string]charmstore.FileMetadata, error) {
			return service.registry.Files(executionContext, charmName, revisionNumber)
		},
	)
	if listingError != nil {
		switch {
		case errors.Is(listingError, charmstore.ErrEntityNotFound):
			revisionLogger.Debug(listingSkipNotFoundMessageConstant)
			return store.RevisionRecord{}, false, nil
		case errors.Is(listingError, charmstore.ErrInteractionRequired):
			revisionLogger.Debug(listingSkipInteractionMessageConstant)
			return store.RevisionRecord{}, false, nil
		case errors.Is(listingError, charmstore.ErrServerTransient):
			revisionLogger.Debug(listingSkipExhaustedMessageConstant)
			return store.RevisionRecord{}, false, nil
		default:
			return store.RevisionRecord{}, false, listingError
		}
	}

	if _, provenancePresent := fileMetadataByName[ProvenanceFileName]; !provenancePresent {
		revisionLogger.Debug(provenanceMissingMessageConstant)
		return store.RevisionRecord{}, false, nil
	}

	repoInfoText, contentError := executeWithPolicy(
		executionContext,
		service.contentRetryPolicy,
		isTransientError,
		func() (string, error) {
			return service.registry.FileContents(executionContext, charmName, revisionNumber, ProvenanceFileName)
		},
	)
	if contentError != nil {
		if errors.Is(contentError, charmstore.ErrServerTransient) {
			revisionLogger.Debug(provenanceFetchExhaustedMessageConstant)
			return store.RevisionRecord{}, false, nil
		}
		return store.RevisionRecord{}, false, contentError
	}

	provenanceRecord, provenanceFound := provenance.Parse(repoInfoText)
	if !provenanceFound {
		revisionLogger.Debug(provenanceUnparsableMessageConstant)
		return store.RevisionRecord{}, false, nil
	}

	revisionLogger.Debug(revisionRecordedMessageConstant, zap.String(logFieldSHAConstant, provenanceRecord.SHA))

	return store.RevisionRecord{
		SHA:      provenanceRecord.SHA,
		Owner:    provenanceRecord.Owner,
		RepoName: provenanceRecord.RepoName,
	}, true, nil
}

func isTransientError(candidateError error) bool {
	return errors.Is(candidateError, charmstore.ErrServerTransient)
}

func parseHighestRevision(entityIdentifier string) (int, error) {
	identifierMatch := trailingRevisionPattern.FindStringSubmatch(entityIdentifier)
	if identifierMatch == nil {
		return 0, fmt.Errorf(malformedIdentifierTemplateConstant, entityIdentifier)
	}
	return strconv.Atoi(identifierMatch[1])
}
