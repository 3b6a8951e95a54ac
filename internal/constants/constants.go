package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	BrokerKafka  = "kafka"
	BrokerLmstfy = "lmstfy"
)

const (
	ResultStorePostgres = "postgres"
	ResultStoreMongoDB  = "mongodb"
)

const (
	WorkerAffiliation = "affiliation-check"
	WorkerDocument    = "document-authentication"
)

const (
	DefaultAffiliationQueue        = "auth.user.registered"
	DefaultAffiliationOutcomeTopic = "auth.user.affiliation.completed"
	DefaultDocumentQueue           = "document.authentication.requested"
	DefaultDocumentOutcomeTopic    = "document.authentication.completed"
)

const (
	DefaultVerificationTimeout = 10 * time.Second
	DefaultVerificationRetries = 3
	DefaultOperatorName        = "Coordenador Ciudadano"
	DefaultCitizenAddress      = "Cra 44 # 45 - 67"
)

const (
	DefaultAffiliationPath   = "apis/registerCitizen"
	DefaultDocumentPath      = "apis/authenticateDocument"
	DefaultEligibilityPath   = "apis/validateCitizen/{citizen_id}"
	DefaultAffiliationRule   = "status_code == 200 || status_code == 201"
	DefaultDocumentRule      = "status_code == 200"
	DefaultEligibilityRule   = "status_code == 204"
	HTTPStatusOKMin          = 200
	HTTPStatusOKMax          = 300
	MaxResponseBodyBytes     = 1 << 20
	ResponseSnippetMaxLength = 512
	APIKeyHeader             = "X-API-Key"
	ContentTypeJSON          = "application/json"
)

const (
	RevocationKeyPrefix    = "revoked:cred:"
	DefaultLookupTimeout   = 200 * time.Millisecond
	DefaultTokenTTL        = time.Hour
	GrantTypeClientCreds   = "client_credentials"
	DefaultJWTAlgorithm    = "HS256"
	AuthorizationHeader    = "Authorization"
	BearerPrefix           = "Bearer "
	ContextKeyClaims       = "auth_claims"
	ContextKeyCredentialID = "auth_credential_id"
)

const (
	DefaultMongoDBName    = "connectivity"
	OutcomesCollection    = "verification_outcomes"
	DefaultDrainTimeout   = 30 * time.Second
	DefaultPublishTimeout = 10 * time.Second
	DefaultShutdownGrace  = 45 * time.Second
	ShutdownTimeout       = 5 * time.Second
	ConsumeErrorBackoff   = time.Second
)
