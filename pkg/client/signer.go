package client

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zhiyin2021/rocketmq-clients/internal/protocol"
)

// Metadata header names attached to every RPC.
const (
	TenantIDKey        = "x-mq-tenant-id"
	NamespaceKey       = "x-mq-namespace"
	AuthorizationKey   = "authorization"
	DateTimeKey        = "x-mq-date-time"
	SessionTokenKey    = "x-mq-session-token"
	RequestIDKey       = "x-mq-request-id"
	LanguageKey        = "x-mq-language"
	ClientVersionKey   = "x-mq-client-version"
	ProtocolVersionKey = "x-mq-protocol"

	signAlgorithm = "MQv2-HMAC-SHA1"

	// Brokers key behavior off the language header; the literal is part of
	// the wire contract and must not change without broker coordination.
	languageTag = "JAVA"

	dateTimeLayout = "20060102T150405Z"
)

// Sign builds the per-request authentication metadata for the given config
// at the given instant.
//
// The result always contains the request id, date-time, language, protocol
// and client version headers, plus tenant id and namespace when configured.
// When a credentials provider is configured and yields a non-empty access
// key and secret, an authorization header of the form
//
//	MQv2-HMAC-SHA1 Credential=<ak>/<region>/<service>, SignedHeaders=x-mq-date-time, Signature=<hex>
//
// is added, where the signature is the lowercase-hex HMAC-SHA1 of the
// date-time string keyed by the access secret. Missing or blank credentials
// yield unsigned metadata without error.
func Sign(cfg *Config, now time.Time) (map[string]string, error) {
	metadata := make(map[string]string, 10)

	if cfg.TenantID != "" {
		metadata[TenantIDKey] = cfg.TenantID
	}
	metadata[LanguageKey] = languageTag
	metadata[ProtocolVersionKey] = protocol.ProtocolVersion
	metadata[ClientVersionKey] = protocol.ClientVersion
	if cfg.Namespace != "" {
		metadata[NamespaceKey] = cfg.Namespace
	}

	dateTime := now.UTC().Format(dateTimeLayout)
	metadata[DateTimeKey] = dateTime
	metadata[RequestIDKey] = uuid.NewString()

	provider := cfg.CredentialsProvider
	if provider == nil {
		return metadata, nil
	}
	credentials, err := provider.Credentials()
	if err != nil {
		return nil, NewError(KindSigningFailure, "failed to get credentials", err)
	}

	if credentials.SessionToken != "" {
		metadata[SessionTokenKey] = credentials.SessionToken
	}
	if credentials.AccessKey == "" || credentials.AccessSecret == "" {
		return metadata, nil
	}

	signature, err := hmacSHA1(credentials.AccessSecret, dateTime)
	if err != nil {
		return nil, NewError(KindSigningFailure, "failed to compute signature", err)
	}

	metadata[AuthorizationKey] = fmt.Sprintf(
		"%s Credential=%s/%s/%s, SignedHeaders=%s, Signature=%s",
		signAlgorithm, credentials.AccessKey, cfg.RegionID, cfg.ServiceName, DateTimeKey, signature,
	)
	return metadata, nil
}

func hmacSHA1(secret, payload string) (string, error) {
	mac := hmac.New(sha1.New, []byte(secret))
	if _, err := mac.Write([]byte(payload)); err != nil {
		return "", err
	}
	return hex.EncodeToString(mac.Sum(nil)), nil
}
