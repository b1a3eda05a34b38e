package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"
)

const (
	lastRevisionKeyConstant                 = "last_revision"
	storePathRequiredMessageConstant        = "store path must be provided"
	storeReadErrorTemplateConstant          = "unable to read revision store %s: %w"
	storeDecodeErrorTemplateConstant        = "unable to decode revision store %s: %w"
	storeEncodeErrorTemplateConstant        = "unable to encode revision store: %w"
	storeTemporaryFileErrorTemplateConstant = "unable to create temporary store file: %w"
	storeWriteErrorTemplateConstant         = "unable to write revision store %s: %w"
	storeRenameErrorTemplateConstant        = "unable to replace revision store %s: %w"
	temporaryFilePatternConstant            = ".charm_revisions-*.yaml"
	storeFilePermissionsConstant            = 0o644
)

// ErrStorePathRequired indicates an empty store path was supplied.
var ErrStorePathRequired = errors.New(storePathRequiredMessageConstant)

// RevisionRecord captures what is known about one published charm revision.
type RevisionRecord struct {
	SHA      string `yaml:"sha,omitempty"`
	Owner    string `yaml:"user,omitempty"`
	RepoName string `yaml:"repo,omitempty"`
	Release  string `yaml:"release,omitempty"`
}

// HasRepository reports whether the record names the owning GitHub repository.
func (record RevisionRecord) HasRepository() bool {
	return len(record.Owner) > 0 && len(record.RepoName) > 0
}

// TrackedPackage holds the reconciliation state for one charm.
type TrackedPackage struct {
	LastRevision int
	Revisions    map[int]RevisionRecord
}

// MergeRevision overlays the supplied record onto any existing entry for the
// revision, keeping previously recorded fields the new record does not carry.
func (trackedPackage *TrackedPackage) MergeRevision(revisionNumber int, record RevisionRecord) {
	if trackedPackage.Revisions == nil {
		trackedPackage.Revisions = map[int]RevisionRecord{}
	}

	existingRecord := trackedPackage.Revisions[revisionNumber]
	if len(record.SHA) > 0 {
		existingRecord.SHA = record.SHA
	}
	if len(record.Owner) > 0 {
		existingRecord.Owner = record.Owner
	}
	if len(record.RepoName) > 0 {
		existingRecord.RepoName = record.RepoName
	}
	if len(record.Release) > 0 {
		existingRecord.Release = record.Release
	}
	trackedPackage.Revisions[revisionNumber] = existingRecord
}

// SortedRevisionNumbers returns the recorded revision numbers in ascending order.
func (trackedPackage *TrackedPackage) SortedRevisionNumbers() []int {
	revisionNumbers := make([]int, 0, len(trackedPackage.Revisions))
	for revisionNumber := range trackedPackage.Revisions {
		revisionNumbers = append(revisionNumbers, revisionNumber)
	}
	sort.Ints(revisionNumbers)
	return revisionNumbers
}

// UnmarshalYAML normalizes stored package entries into the canonical shape.
// Legacy entries may be a bare scalar or null; both decode to an empty record
// whose first revision has not been scanned yet.
func (trackedPackage *TrackedPackage) UnmarshalYAML(value *yaml.Node) error {
	trackedPackage.LastRevision = 0
	trackedPackage.Revisions = map[int]RevisionRecord{}

	if value.Kind != yaml.MappingNode {
		return nil
	}

	for pairIndex := 0; pairIndex+1 < len(value.Content); pairIndex += 2 {
		keyNode := value.Content[pairIndex]
		valueNode := value.Content[pairIndex+1]

		if keyNode.Value == lastRevisionKeyConstant {
			if decodeError := valueNode.Decode(&trackedPackage.LastRevision); decodeError != nil {
				return decodeError
			}
			continue
		}

		revisionNumber, conversionError := strconv.Atoi(keyNode.Value)
		if conversionError != nil {
			continue
		}

		var revisionRecord RevisionRecord
		if decodeError := valueNode.Decode(&revisionRecord); decodeError != nil {
			return decodeError
		}
		trackedPackage.Revisions[revisionNumber] = revisionRecord
	}

	return nil
}

// MarshalYAML renders the package as a mapping with the last checked revision
// first followed by revision records in ascending numeric order.
func (trackedPackage *TrackedPackage) MarshalYAML() (any, error) {
	mappingNode := &yaml.Node{Kind: yaml.MappingNode}

	keyNode := &yaml.Node{}
	if encodeError := keyNode.Encode(lastRevisionKeyConstant); encodeError != nil {
		return nil, encodeError
	}
	valueNode := &yaml.Node{}
	if encodeError := valueNode.Encode(trackedPackage.LastRevision); encodeError != nil {
		return nil, encodeError
	}
	mappingNode.Content = append(mappingNode.Content, keyNode, valueNode)

	for _, revisionNumber := range trackedPackage.SortedRevisionNumbers() {
		revisionKeyNode := &yaml.Node{}
		if encodeError := revisionKeyNode.Encode(revisionNumber); encodeError != nil {
			return nil, encodeError
		}
		revisionValueNode := &yaml.Node{}
		if encodeError := revisionValueNode.Encode(trackedPackage.Revisions[revisionNumber]); encodeError != nil {
			return nil, encodeError
		}
		mappingNode.Content = append(mappingNode.Content, revisionKeyNode, revisionValueNode)
	}

	return mappingNode, nil
}

// Document is the whole persisted revision ledger keyed by charm name.
type Document struct {
	Packages map[string]*TrackedPackage
}

// NewDocument constructs an empty revision ledger.
func NewDocument() *Document {
	return &Document{Packages: map[string]*TrackedPackage{}}
}

// EnsurePackage returns the tracked package for the supplied name, creating an
// empty entry when the charm is not recorded yet.
func (document *Document) EnsurePackage(packageName string) *TrackedPackage {
	if document.Packages == nil {
		document.Packages = map[string]*TrackedPackage{}
	}
	trackedPackage, packageExists := document.Packages[packageName]
	if !packageExists {
		trackedPackage = &TrackedPackage{Revisions: map[int]RevisionRecord{}}
		document.Packages[packageName] = trackedPackage
	}
	return trackedPackage
}

// SortedPackageNames returns the tracked charm names in lexical order.
func (document *Document) SortedPackageNames() []string {
	packageNames := make([]string, 0, len(document.Packages))
	for packageName := range document.Packages {
		packageNames = append(packageNames, packageName)
	}
	sort.Strings(packageNames)
	return packageNames
}

// UnmarshalYAML decodes the top-level charm mapping.
func (document *Document) UnmarshalYAML(value *yaml.Node) error {
	document.Packages = map[string]*TrackedPackage{}

	if value.Kind != yaml.MappingNode {
		return nil
	}

	for pairIndex := 0; pairIndex+1 < len(value.Content); pairIndex += 2 {
		keyNode := value.Content[pairIndex]
		valueNode := value.Content[pairIndex+1]

		trackedPackage := &TrackedPackage{}
		if decodeError := valueNode.Decode(trackedPackage); decodeError != nil {
			return decodeError
		}
		document.Packages[keyNode.Value] = trackedPackage
	}

	return nil
}

// MarshalYAML renders the ledger sorted by charm name for stable output.
func (document *Document) MarshalYAML() (any, error) {
	mappingNode := &yaml.Node{Kind: yaml.MappingNode}

	for _, packageName := range document.SortedPackageNames() {
		keyNode := &yaml.Node{}
		if encodeError := keyNode.Encode(packageName); encodeError != nil {
			return nil, encodeError
		}
		valueNode := &yaml.Node{}
		if encodeError := valueNode.Encode(document.Packages[packageName]); encodeError != nil {
			return nil, encodeError
		}
		mappingNode.Content = append(mappingNode.Content, keyNode, valueNode)
	}

	return mappingNode, nil
}

// Load reads the whole revision ledger from the supplied path. A missing file
// yields an empty document so a first run can seed the ledger.
func Load(storePath string) (*Document, error) {
	if len(storePath) == 0 {
		return nil, ErrStorePathRequired
	}

	fileContents, readError := os.ReadFile(storePath)
	if readError != nil {
		if os.IsNotExist(readError) {
			return NewDocument(), nil
		}
		return nil, fmt.Errorf(storeReadErrorTemplateConstant, storePath, readError)
	}

	document := NewDocument()
	if decodeError := yaml.Unmarshal(fileContents, document); decodeError != nil {
		return nil, fmt.Errorf(storeDecodeErrorTemplateConstant, storePath, decodeError)
	}

	return document, nil
}

// Save rewrites the whole revision ledger through a temporary file followed by
// an atomic rename so readers never observe a partially written document.
func Save(storePath string, document *Document) error {
	if len(storePath) == 0 {
		return ErrStorePathRequired
	}

	encodedDocument, encodeError := yaml.Marshal(document)
	if encodeError != nil {
		return fmt.Errorf(storeEncodeErrorTemplateConstant, encodeError)
	}

	storeDirectory := filepath.Dir(storePath)
	temporaryFile, temporaryFileError := os.CreateTemp(storeDirectory, temporaryFilePatternConstant)
	if temporaryFileError != nil {
		return fmt.Errorf(storeTemporaryFileErrorTemplateConstant, temporaryFileError)
	}
	temporaryPath := temporaryFile.Name()

	if _, writeError := temporaryFile.Write(encodedDocument); writeError != nil {
		_ = temporaryFile.Close()
		_ = os.Remove(temporaryPath)
		return fmt.Errorf(storeWriteErrorTemplateConstant, storePath, writeError)
	}
	if closeError := temporaryFile.Close(); closeError != nil {
		_ = os.Remove(temporaryPath)
		return fmt.Errorf(storeWriteErrorTemplateConstant, storePath, closeError)
	}
	if permissionError := os.Chmod(temporaryPath, storeFilePermissionsConstant); permissionError != nil {
		_ = os.Remove(temporaryPath)
		return fmt.Errorf(storeWriteErrorTemplateConstant, storePath, permissionError)
	}

	if renameError := os.Rename(temporaryPath, storePath); renameError != nil {
		_ = os.Remove(temporaryPath)
		return fmt.Errorf(storeRenameErrorTemplateConstant, storePath, renameError)
	}

	return nil
}
