package llm

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// AzureADScope is the fixed Cognitive Services scope Azure OpenAI
// deployments require for AAD client-credentials auth.
const AzureADScope = "https://cognitiveservices.azure.com/.default"

// oauth2TokenSource adapts an oauth2.TokenSource to llm.TokenSource,
// grounded on vertex.go's google.DefaultTokenSource usage — the donor
// never implemented Azure, so this follows the same oauth2 wiring shape
// one tier down (client-credentials instead of ADC).
type oauth2TokenSource struct {
	ts oauth2.TokenSource
}

func (o oauth2TokenSource) Token(ctx context.Context) (string, error) {
	tok, err := o.ts.Token()
	if err != nil {
		return "", fmt.Errorf("azure AD token: %w", err)
	}
	return tok.AccessToken, nil
}

// NewAzureOpenAI builds a provider for an Azure OpenAI deployment. Azure
// OpenAI is wire-compatible with OpenAI's chat/completions format once the
// deployment URL and api-version are fixed, so this wraps OpenAIProvider
// with an AAD client-credentials TokenSource rather than duplicating the
// request/response handling.
//
// deploymentURL is the full endpoint, e.g.:
//
//	https://{resource}.openai.azure.com/openai/deployments/{deployment}/chat/completions?api-version=2024-06-01
func NewAzureOpenAI(tenantID, clientID, clientSecret, deploymentURL, model string, insecureSkipVerify bool) (*OpenAIProvider, error) {
	if deploymentURL == "" {
		return nil, fmt.Errorf("azure provider requires deployment_url")
	}

	cc := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", tenantID),
		Scopes:       []string{AzureADScope},
	}

	return NewOpenAI("", model, deploymentURL, "", insecureSkipVerify, map[string]string{},
		WithTokenSource(oauth2TokenSource{ts: cc.TokenSource(context.Background())}))
}
