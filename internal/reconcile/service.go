package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/charmrev/internal/resolver"
	"github.com/temirov/charmrev/internal/store"
)

const (
	scannerMissingMessageConstant         = "revision scanner not configured"
	resolverMissingMessageConstant        = "branch resolver not configured"
	loggerMissingMessageConstant          = "logger not configured"
	storePathRequiredMessageConstant      = "store path must be provided"
	scanFailedTemplateConstant            = "scan of charm %s failed: %w"
	resolveFailedTemplateConstant         = "branch resolution for charm %s failed: %w"
	saveFailedTemplateConstant            = "unable to persist ledger for charm %s: %w"
	nothingNewMessageConstant             = "no new revisions"
	noRepositoryInfoMessageConstant       = "revision carries no repository info"
	noRepositoryInBatchMessageConstant    = "no revision in batch names a repository; releases stay unresolved"
	charmReconciledMessageConstant        = "charm reconciled"
	logFieldCharmConstant                 = "charm"
	logFieldRevisionConstant              = "revision"
	logFieldLastRevisionConstant          = "last_revision"
	logFieldScannedCountConstant          = "scanned_revisions"
)

// ErrScannerNotConfigured indicates the scanner dependency was missing.
var ErrScannerNotConfigured = errors.New(scannerMissingMessageConstant)

// ErrResolverNotConfigured indicates the resolver dependency was missing.
var ErrResolverNotConfigured = errors.New(resolverMissingMessageConstant)

// ErrLoggerNotConfigured indicates the logger dependency was missing.
var ErrLoggerNotConfigured = errors.New(loggerMissingMessageConstant)

// ErrStorePathRequired indicates a run received an empty ledger path.
var ErrStorePathRequired = errors.New(storePathRequiredMessageConstant)

// RevisionScanner walks charmstore revisions for one charm.
type RevisionScanner interface {
	Scan(executionContext context.Context, charmName string, lastCheckedRevision int) (map[int]store.RevisionRecord, error)
}

// BranchResolver builds the stable commit window for one repository.
type BranchResolver interface {
	Resolve(executionContext context.Context, owner string, repositoryName string) (*resolver.CommitWindow, error)
}

// DocumentLoader reads the persisted ledger.
type DocumentLoader func(storePath string) (*store.Document, error)

// DocumentSaver rewrites the persisted ledger.
type DocumentSaver func(storePath string, document *store.Document) error

// Dependencies enumerates the collaborators required for reconciliation runs.
type Dependencies struct {
	Scanner        RevisionScanner
	Resolver       BranchResolver
	Logger         *zap.Logger
	DocumentLoader DocumentLoader
	DocumentSaver  DocumentSaver
}

// Options configures one reconciliation run.
type Options struct {
	StorePath    string
	EnsureCharms []string
}

// Service orchestrates reconciliation across all tracked charms.
type Service struct {
	scanner        RevisionScanner
	resolver       BranchResolver
	logger         *zap.Logger
	documentLoader DocumentLoader
	documentSaver  DocumentSaver
}

// NewService constructs a Service from the provided dependencies. Loader and
// saver default to the YAML store implementations.
func NewService(dependencies Dependencies) (*Service, error) {
	if dependencies.Scanner == nil {
		return nil, ErrScannerNotConfigured
	}
	if dependencies.Resolver == nil {
		return nil, ErrResolverNotConfigured
	}
	if dependencies.Logger == nil {
		return nil, ErrLoggerNotConfigured
	}

	documentLoader := dependencies.DocumentLoader
	if documentLoader == nil {
		documentLoader = store.Load
	}
	documentSaver := dependencies.DocumentSaver
	if documentSaver == nil {
		documentSaver = store.Save
	}

	return &Service{
		scanner:        dependencies.Scanner,
		resolver:       dependencies.Resolver,
		logger:         dependencies.Logger,
		documentLoader: documentLoader,
		documentSaver:  documentSaver,
	}, nil
}

// Run reconciles every tracked charm in sorted-name order. The ledger is
// checkpointed after each charm so a failure loses at most the charm being
// processed. Scanner and resolver failures terminate the run.
func (service *Service) Run(executionContext context.Context, options Options) error {
	if len(strings.TrimSpace(options.StorePath)) == 0 {
		return ErrStorePathRequired
	}

	document, loadError := service.documentLoader(options.StorePath)
	if loadError != nil {
		return loadError
	}

	for _, charmName := range options.EnsureCharms {
		trimmedCharmName := strings.TrimSpace(charmName)
		if len(trimmedCharmName) > 0 {
			document.EnsurePackage(trimmedCharmName)
		}
	}

	for _, charmName := range document.SortedPackageNames() {
		if reconcileError := service.reconcileCharm(executionContext, options.StorePath, document, charmName); reconcileError != nil {
			return reconcileError
		}
	}

	return nil
}

func (service *Service) reconcileCharm(executionContext context.Context, storePath string, document *store.Document, charmName string) error {
	charmLogger := service.logger.With(zap.String(logFieldCharmConstant, charmName))
	trackedPackage := document.EnsurePackage(charmName)

	scannedRecords, scanError := service.scanner.Scan(executionContext, charmName, trackedPackage.LastRevision)
	if scanError != nil {
		return fmt.Errorf(scanFailedTemplateConstant, charmName, scanError)
	}

	// An empty result leaves LastRevision untouched so the same range is
	// retried on the next run.
	if len(scannedRecords) == 0 {
		charmLogger.Debug(nothingNewMessageConstant, zap.Int(logFieldLastRevisionConstant, trackedPackage.LastRevision))
		return nil
	}

	commitWindow, windowError := service.buildCommitWindow(executionContext, charmLogger, charmName, scannedRecords)
	if windowError != nil {
		return windowError
	}

	for _, revisionNumber := range descendingRevisionNumbers(scannedRecords) {
		revisionRecord := scannedRecords[revisionNumber]
		if commitWindow != nil && len(revisionRecord.SHA) > 0 {
			if branchName, branchRecorded := commitWindow.BranchFor(revisionRecord.SHA); branchRecorded {
				revisionRecord.Release = branchName
			}
		}
		trackedPackage.MergeRevision(revisionNumber, revisionRecord)
	}

	if saveError := service.documentSaver(storePath, document); saveError != nil {
		return fmt.Errorf(saveFailedTemplateConstant, charmName, saveError)
	}

	trackedPackage.LastRevision = highestRevisionNumber(scannedRecords)

	if saveError := service.documentSaver(storePath, document); saveError != nil {
		return fmt.Errorf(saveFailedTemplateConstant, charmName, saveError)
	}

	charmLogger.Info(
		charmReconciledMessageConstant,
		zap.Int(logFieldLastRevisionConstant, trackedPackage.LastRevision),
		zap.Int(logFieldScannedCountConstant, len(scannedRecords)),
	)

	return nil
}

// buildCommitWindow resolves the stable commit window once per charm, using
// the newest scanned revision that names a repository. Repository identity is
// assumed stable across a charm's history.
func (service *Service) buildCommitWindow(executionContext context.Context, charmLogger *zap.Logger, charmName string, scannedRecords map[int]store.RevisionRecord) (*resolver.CommitWindow, error) {
	for _, revisionNumber := range descendingRevisionNumbers(scannedRecords) {
		revisionRecord := scannedRecords[revisionNumber]
		if !revisionRecord.HasRepository() {
			charmLogger.Debug(noRepositoryInfoMessageConstant, zap.Int(logFieldRevisionConstant, revisionNumber))
			continue
		}

		commitWindow, resolveError := service.resolver.Resolve(executionContext, revisionRecord.Owner, revisionRecord.RepoName)
		if resolveError != nil {
			return nil, fmt.Errorf(resolveFailedTemplateConstant, charmName, resolveError)
		}
		return commitWindow, nil
	}

	// Advancing past these revisions means their provenance can never be
	// joined later once registry history ages out; make the loss visible.
	charmLogger.Warn(noRepositoryInBatchMessageConstant)
	return nil, nil
}

func descendingRevisionNumbers(scannedRecords map[int]store.RevisionRecord) []int {
	revisionNumbers := make([]int, 0, len(scannedRecords))
	for revisionNumber := range scannedRecords {
		revisionNumbers = append(revisionNumbers, revisionNumber)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(revisionNumbers)))
	return revisionNumbers
}

func highestRevisionNumber(scannedRecords map[int]store.RevisionRecord) int {
	highestRevision := 0
	for revisionNumber := range scannedRecords {
		if revisionNumber > highestRevision {
			highestRevision = revisionNumber
		}
	}
	return highestRevision
}
