package client

// Credentials carry the access key pair used to sign requests, plus an
// optional session token for temporary credentials.
type Credentials struct {
	AccessKey    string
	AccessSecret string
	SessionToken string
}

// CredentialsProvider yields the credentials to sign a request with.
// Providers may refresh or rotate credentials between calls.
type CredentialsProvider interface {
	Credentials() (Credentials, error)
}

// StaticCredentialsProvider returns fixed credentials.
type StaticCredentialsProvider struct {
	credentials Credentials
}

// NewStaticCredentialsProvider creates a provider for a fixed key pair.
func NewStaticCredentialsProvider(accessKey, accessSecret string) *StaticCredentialsProvider {
	return &StaticCredentialsProvider{
		credentials: Credentials{AccessKey: accessKey, AccessSecret: accessSecret},
	}
}

// WithSessionToken attaches a session token and returns the provider.
func (p *StaticCredentialsProvider) WithSessionToken(token string) *StaticCredentialsProvider {
	p.credentials.SessionToken = token
	return p
}

func (p *StaticCredentialsProvider) Credentials() (Credentials, error) {
	return p.credentials, nil
}
