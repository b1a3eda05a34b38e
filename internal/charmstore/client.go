package charmstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

const (
	// DefaultBaseURL is the production charmstore API endpoint.
	DefaultBaseURL = "https://api.jujucharms.com/charmstore/v5"

	metaIDPathTemplateConstant            = "%s/%s/meta/id"
	metaManifestPathTemplateConstant      = "%s/%s-%d/meta/manifest"
	archiveFilePathTemplateConstant       = "%s/%s-%d/archive/%s"
	loggerRequiredMessageConstant         = "logger must be provided"
	httpClientRequiredMessageConstant     = "http client must be provided"
	charmNameRequiredMessageConstant      = "charm name must be provided"
	fileNameRequiredMessageConstant       = "file name must be provided"
	requestCreationErrorTemplateConstant  = "unable to create charmstore request: %w"
	requestExecutionErrorTemplateConstant = "charmstore request failed: %w"
	responseDecodeErrorTemplateConstant   = "unable to decode charmstore response: %w"
	responseReadErrorTemplateConstant     = "unable to read charmstore response: %w"
	unexpectedStatusTemplateConstant      = "charmstore returned unexpected status %d for %s"
	statusWrapTemplateConstant            = "%w: status %d for %s"
	requestLogMessageConstant             = "charmstore request"
	logFieldURLConstant                   = "url"
	logFieldStatusConstant                = "status"
)

// ErrLoggerRequired indicates the client was constructed without a logger.
var ErrLoggerRequired = errors.New(loggerRequiredMessageConstant)

// ErrHTTPClientRequired indicates the client was constructed without an HTTP client.
var ErrHTTPClientRequired = errors.New(httpClientRequiredMessageConstant)

// ErrCharmNameRequired indicates an operation received an empty charm name.
var ErrCharmNameRequired = errors.New(charmNameRequiredMessageConstant)

// ErrFileNameRequired indicates a file fetch received an empty file name.
var ErrFileNameRequired = errors.New(fileNameRequiredMessageConstant)

// HTTPClient abstracts request execution for testability.
type HTTPClient interface {
	Do(request *http.Request) (*http.Response, error)
}

// EntityMetadata describes a charmstore entity lookup result. The identifier
// is self-describing and ends in the highest published revision number.
type EntityMetadata struct {
	ID string `json:"Id"`
}

// FileMetadata describes one file inside a published charm archive.
type FileMetadata struct {
	Name string `json:"Name"`
	Size int64  `json:"Size"`
}

// ClientConfiguration customizes charmstore client behavior.
type ClientConfiguration struct {
	BaseURL string
}

// Client talks to the charmstore v5 API.
type Client struct {
	logger     *zap.Logger
	httpClient HTTPClient
	baseURL    string
}

// NewClient constructs a charmstore client from the supplied collaborators.
func NewClient(logger *zap.Logger, httpClient HTTPClient, configuration ClientConfiguration) (*Client, error) {
	if logger == nil {
		return nil, ErrLoggerRequired
	}
	if httpClient == nil {
		return nil, ErrHTTPClientRequired
	}

	baseURL := strings.TrimSuffix(strings.TrimSpace(configuration.BaseURL), "/")
	if len(baseURL) == 0 {
		baseURL = DefaultBaseURL
	}

	return &Client{logger: logger, httpClient: httpClient, baseURL: baseURL}, nil
}

// Entity looks up the charm by name and returns its identifying metadata.
func (client *Client) Entity(executionContext context.Context, charmName string) (EntityMetadata, error) {
	if len(strings.TrimSpace(charmName)) == 0 {
		return EntityMetadata{}, ErrCharmNameRequired
	}

	requestURL := fmt.Sprintf(metaIDPathTemplateConstant, client.baseURL, url.PathEscape(charmName))
	responseBody, requestError := client.executeRequest(executionContext, requestURL)
	if requestError != nil {
		return EntityMetadata{}, requestError
	}

	var entityMetadata EntityMetadata
	if decodeError := json.Unmarshal(responseBody, &entityMetadata); decodeError != nil {
		return EntityMetadata{}, fmt.Errorf(responseDecodeErrorTemplateConstant, decodeError)
	}

	return entityMetadata, nil
}

// Files lists the archive contents of one published revision keyed by file name.
func (client *Client) Files(executionContext context.Context, charmName string, revisionNumber int) (map[string]FileMetadata, error) {
	if len(strings.TrimSpace(charmName)) == 0 {
		return nil, ErrCharmNameRequired
	}

	requestURL := fmt.Sprintf(metaManifestPathTemplateConstant, client.baseURL, url.PathEscape(charmName), revisionNumber)
	responseBody, requestError := client.executeRequest(executionContext, requestURL)
	if requestError != nil {
		return nil, requestError
	}

	var manifestEntries []FileMetadata
	if decodeError := json.Unmarshal(responseBody, &manifestEntries); decodeError != nil {
		return nil, fmt.Errorf(responseDecodeErrorTemplateConstant, decodeError)
	}

	fileMetadataByName := make(map[string]FileMetadata, len(manifestEntries))
	for _, manifestEntry := range manifestEntries {
		fileMetadataByName[manifestEntry.Name] = manifestEntry
	}

	return fileMetadataByName, nil
}

// FileContents fetches one file from the archive of one published revision.
func (client *Client) FileContents(executionContext context.Context, charmName string, revisionNumber int, fileName string) (string, error) {
	if len(strings.TrimSpace(charmName)) == 0 {
		return "", ErrCharmNameRequired
	}
	if len(strings.TrimSpace(fileName)) == 0 {
		return "", ErrFileNameRequired
	}

	requestURL := fmt.Sprintf(archiveFilePathTemplateConstant, client.baseURL, url.PathEscape(charmName), revisionNumber, url.PathEscape(fileName))
	responseBody, requestError := client.executeRequest(executionContext, requestURL)
	if requestError != nil {
		return "", requestError
	}

	return string(responseBody), nil
}

func (client *Client) executeRequest(executionContext context.Context, requestURL string) ([]byte, error) {
	request, requestCreationError := http.NewRequestWithContext(executionContext, http.MethodGet, requestURL, nil)
	if requestCreationError != nil {
		return nil, fmt.Errorf(requestCreationErrorTemplateConstant, requestCreationError)
	}

	response, executionError := client.httpClient.Do(request)
	if executionError != nil {
		return nil, fmt.Errorf(requestExecutionErrorTemplateConstant, executionError)
	}
	defer func() {
		_ = response.Body.Close()
	}()

	client.logger.Debug(
		requestLogMessageConstant,
		zap.String(logFieldURLConstant, requestURL),
		zap.Int(logFieldStatusConstant, response.StatusCode),
	)

	if classificationError := classifyStatus(response.StatusCode, requestURL); classificationError != nil {
		return nil, classificationError
	}

	responseBody, readError := io.ReadAll(response.Body)
	if readError != nil {
		return nil, fmt.Errorf(responseReadErrorTemplateConstant, readError)
	}

	return responseBody, nil
}

func classifyStatus(statusCode int, requestURL string) error {
	switch {
	case statusCode == http.StatusOK:
		return nil
	case statusCode == http.StatusNotFound:
		return fmt.Errorf(statusWrapTemplateConstant, ErrEntityNotFound, statusCode, requestURL)
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusProxyAuthRequired:
		return fmt.Errorf(statusWrapTemplateConstant, ErrInteractionRequired, statusCode, requestURL)
	case statusCode >= http.StatusInternalServerError:
		return fmt.Errorf(statusWrapTemplateConstant, ErrServerTransient, statusCode, requestURL)
	default:
		return fmt.Errorf(unexpectedStatusTemplateConstant, statusCode, requestURL)
	}
}
