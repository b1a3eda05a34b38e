package resolver

import (
	"context"
	"net/http"
	"os"
	"strings"

	"github.com/google/go-github/v75/github"
	"golang.org/x/oauth2"
)

// Environment variable names carrying the optional GitHub credential pair.
const (
	EnvGitHubUser  = "GITHUB_USER"
	EnvGitHubToken = "GITHUB_TOKEN"
)

// Credentials holds the ambient GitHub credential pair.
type Credentials struct {
	User  string
	Token string
}

// HasToken reports whether authenticated access is possible.
func (credentials Credentials) HasToken() bool {
	return len(credentials.Token) > 0
}

// EnvironmentLookup obtains an environment variable value.
type EnvironmentLookup func(key string) (string, bool)

// CredentialsFromEnvironment reads the GitHub credential pair from the
// environment. Both variables must be present for authenticated access;
// otherwise the zero credentials select unauthenticated access with its
// stricter rate limits.
func CredentialsFromEnvironment(environmentLookup EnvironmentLookup) Credentials {
	if environmentLookup == nil {
		environmentLookup = os.LookupEnv
	}

	userValue, userPresent := environmentLookup(EnvGitHubUser)
	tokenValue, tokenPresent := environmentLookup(EnvGitHubToken)
	if !userPresent || !tokenPresent {
		return Credentials{}
	}

	trimmedUser := strings.TrimSpace(userValue)
	trimmedToken := strings.TrimSpace(tokenValue)
	if len(trimmedUser) == 0 || len(trimmedToken) == 0 {
		return Credentials{}
	}

	return Credentials{User: trimmedUser, Token: trimmedToken}
}

// NewRepositoryLister builds a go-github backed lister, authenticated when
// the credentials carry a token.
func NewRepositoryLister(executionContext context.Context, credentials Credentials) RepositoryLister {
	var httpClient *http.Client
	if credentials.HasToken() {
		tokenSource := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: credentials.Token})
		httpClient = oauth2.NewClient(executionContext, tokenSource)
	}
	return github.NewClient(httpClient).Repositories
}
